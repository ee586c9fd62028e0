package models

import (
	"github.com/google/uuid"
)

// Payment stores escrow capture state for an application, driven by the
// Payme merchant API. Amount is in tiyin.
type Payment struct {
	BaseModel
	ApplicationID uuid.UUID `gorm:"type:uuid;index;not null" json:"application_id"`
	ContractorID  uuid.UUID `gorm:"type:uuid;index;not null" json:"contractor_id"`
	WorkerID      uuid.UUID `gorm:"type:uuid;index;not null" json:"worker_id"`
	TransactionID string    `gorm:"column:transaction_id;index" json:"transaction_id"`
	Provider      string    `gorm:"not null;default:payme" json:"provider"`
	Status        int       `json:"status"`
	Amount        int64     `json:"amount"`
	CreateTime    int64     `json:"create_time"`
	PerformTime   int64     `json:"perform_time"`
	CancelTime    int64     `json:"cancel_time"`
	Reason        *int      `json:"reason"`
}

// SafetyFundContribution is a voluntary donation to the community safety fund.
type SafetyFundContribution struct {
	BaseModel
	ProfileID uuid.UUID `gorm:"type:uuid;index;not null" json:"profile_id"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Note      string    `json:"note"`
}
