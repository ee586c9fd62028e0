// Package events persists workflow events in an outbox table and relays
// them to Kafka.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/models"
)

// Outbox stores events in the shift_events table. It implements
// services.AuditSink.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox constructs an Outbox.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Record inserts a READY event.
func (o *Outbox) Record(ctx context.Context, event *models.ShiftEvent) error {
	if event.Status == "" {
		event.Status = models.EventStatusReady
	}
	return o.db.WithContext(ctx).Create(event).Error
}

// Pending returns up to limit READY events, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]models.ShiftEvent, error) {
	var out []models.ShiftEvent
	err := o.db.WithContext(ctx).
		Where("status = ?", models.EventStatusReady).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkSent flags the given events as delivered.
func (o *Outbox) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return o.db.WithContext(ctx).Model(&models.ShiftEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":  models.EventStatusSent,
			"sent_at": at,
		}).Error
}
