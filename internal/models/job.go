package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Job statuses.
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
)

// Application statuses.
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// Job is a piece of work posted by a contractor.
type Job struct {
	BaseModel
	ContractorID   uuid.UUID      `gorm:"type:uuid;index;not null" json:"contractor_id"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `json:"description"`
	Skills         pq.StringArray `gorm:"type:text[]" json:"skills"`
	City           string         `gorm:"index" json:"city"`
	Address        string         `json:"address"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Wage           float64        `json:"wage"`
	Currency       string         `json:"currency"`
	WorkersNeeded  int            `json:"workers_needed"`
	StartDate      *time.Time     `json:"start_date"`
	Status         string         `gorm:"index;not null;default:open" json:"status"`
	ApplicantCount int            `gorm:"-" json:"applicant_count,omitempty"`
}

// Application records a worker's interest in a job.
type Application struct {
	BaseModel
	JobID        uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_applications_job_worker" json:"job_id"`
	WorkerID     uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_applications_job_worker" json:"worker_id"`
	ContractorID uuid.UUID `gorm:"type:uuid;index;not null" json:"contractor_id"`
	Status       string    `gorm:"index;not null;default:pending" json:"status"`
	OfferedWage  *float64  `json:"offered_wage"`
	Message      string    `json:"message"`
}
