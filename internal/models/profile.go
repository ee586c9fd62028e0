package models

import (
	"time"

	"github.com/lib/pq"
)

// Profile roles.
const (
	RoleWorker     = "worker"
	RoleContractor = "contractor"
)

// KYC review states.
const (
	KycStatusNone      = "none"
	KycStatusSubmitted = "submitted"
	KycStatusVerified  = "verified"
)

// Profile is a phone-authenticated marketplace member.
type Profile struct {
	BaseModel
	Phone          string         `gorm:"uniqueIndex;not null" json:"phone"`
	Role           string         `gorm:"not null;default:worker" json:"role"`
	FullName       string         `json:"full_name"`
	Language       string         `json:"language"`
	City           string         `gorm:"index" json:"city"`
	Bio            string         `json:"bio"`
	Skills         pq.StringArray `gorm:"type:text[]" json:"skills"`
	DailyWage      float64        `json:"daily_wage"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	KycStatus      string         `gorm:"not null;default:none" json:"kyc_status"`
	KycDocType     string         `json:"kyc_document_type,omitempty"`
	KycDocumentKey string         `json:"-"`
	KycSubmittedAt *time.Time     `json:"kyc_submitted_at,omitempty"`
	IsVerified     bool           `json:"is_verified"`
}

// LoginCode keeps track of phone login codes. Only the bcrypt hash is stored.
type LoginCode struct {
	BaseModel
	Phone     string     `gorm:"index;not null" json:"phone"`
	CodeHash  string     `gorm:"not null" json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Attempts  int        `gorm:"default:0" json:"attempts"`
	UsedAt    *time.Time `json:"used_at"`
}
