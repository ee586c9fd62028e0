package models

import "github.com/google/uuid"

// Rating is a review one party leaves about another for a job.
type Rating struct {
	BaseModel
	JobID   uuid.UUID `gorm:"type:uuid;not null;index:idx_ratings_job_rater,priority:1" json:"job_id"`
	RaterID uuid.UUID `gorm:"type:uuid;not null;index:idx_ratings_job_rater,priority:2" json:"rater_id"`
	RatedID uuid.UUID `gorm:"type:uuid;not null;index" json:"rated_id"`
	Score   int       `gorm:"not null;check:score >= 1 AND score <= 5" json:"score"`
	Review  string    `json:"review"`
}
