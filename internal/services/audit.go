package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

// Audit event types.
const (
	EventOtpIssued       = "otp.issued"
	EventShiftStarted    = "shift.started"
	EventShiftCompleted  = "shift.completed"
	EventRatingSubmitted = "rating.submitted"
)

// recordEvent writes a post-commit audit row. The primary write already
// happened, so failures are logged and swallowed.
func recordEvent(ctx context.Context, sink AuditSink, eventType string, applicationID, actorID uuid.UUID, payload map[string]any) {
	if sink == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		utils.Logger.WithError(err).Warnf("audit: cannot encode %s payload", eventType)
		return
	}

	event := &models.ShiftEvent{
		Type:          eventType,
		ApplicationID: applicationID,
		ActorID:       actorID,
		Payload:       datatypes.JSON(raw),
		Status:        models.EventStatusReady,
	}
	if err := sink.Record(ctx, event); err != nil {
		utils.Logger.WithError(err).
			WithField("application_id", applicationID).
			Warnf("audit: failed to record %s", eventType)
	}
}
