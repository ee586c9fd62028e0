package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Shift OTP types.
const (
	OtpTypeStart = "start"
	OtpTypeEnd   = "end"
)

// Shift statuses.
const (
	ShiftStatusOngoing   = "ongoing"
	ShiftStatusCompleted = "completed"
)

// ShiftOtp is a short-lived code the contractor relays to the worker.
// Used only ever flips false -> true.
type ShiftOtp struct {
	BaseModel
	ApplicationID uuid.UUID `gorm:"type:uuid;not null;index:idx_shift_otps_lookup,priority:1" json:"application_id"`
	ContractorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"contractor_id"`
	WorkerID      uuid.UUID `gorm:"type:uuid;not null" json:"worker_id"`
	JobID         uuid.UUID `gorm:"type:uuid;not null" json:"job_id"`
	Code          string    `gorm:"type:varchar(6);not null;index:idx_shift_otps_lookup,priority:2" json:"code"`
	Type          string    `gorm:"type:varchar(8);not null;index:idx_shift_otps_lookup,priority:3" json:"type"`
	IssuedAt      time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt     time.Time `gorm:"not null" json:"expires_at"`
	Used          bool      `gorm:"not null;default:false" json:"used"`
}

// Expired reports whether the code is past its expiry at now.
func (o *ShiftOtp) Expired(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}

// ShiftLog is one physical work session.
type ShiftLog struct {
	BaseModel
	ApplicationID uuid.UUID  `gorm:"type:uuid;index" json:"application_id"`
	WorkerID      uuid.UUID  `gorm:"type:uuid;not null;index:idx_shift_logs_triple,priority:3" json:"worker_id"`
	ContractorID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_shift_logs_triple,priority:2" json:"contractor_id"`
	JobID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_shift_logs_triple,priority:1" json:"job_id"`
	StartOtpID    uuid.UUID  `gorm:"type:uuid" json:"start_otp_id"`
	EndOtpID      *uuid.UUID `gorm:"type:uuid" json:"end_otp_id,omitempty"`
	StartTime     time.Time  `gorm:"not null" json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Status        string     `gorm:"type:varchar(16);not null" json:"status"`
}

// Duration returns the worked time; zero while ongoing.
func (s *ShiftLog) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Outbox delivery states.
const (
	EventStatusReady = "READY"
	EventStatusSent  = "SENT"
)

// ShiftEvent is an audit/outbox row relayed to the event stream.
type ShiftEvent struct {
	BaseModel
	Type          string         `gorm:"type:varchar(32);not null" json:"type"`
	ApplicationID uuid.UUID      `gorm:"type:uuid;index" json:"application_id"`
	ActorID       uuid.UUID      `gorm:"type:uuid" json:"actor_id"`
	Payload       datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Status        string         `gorm:"type:varchar(8);not null;default:READY;index" json:"status"`
	SentAt        *time.Time     `json:"sent_at"`
}
