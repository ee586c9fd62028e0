package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/segmentio/kafka-go"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

const defaultBatchSize = 100

// Store is the outbox side the relay drains.
type Store interface {
	Pending(ctx context.Context, limit int) ([]models.ShiftEvent, error)
	MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher writes messages to the event stream. *kafka.Writer satisfies it.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// envelope is the message value published for each event.
type envelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	ApplicationID uuid.UUID       `json:"application_id"`
	ActorID       uuid.UUID       `json:"actor_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Relay moves READY outbox rows to the publisher and marks them SENT.
type Relay struct {
	store     Store
	publisher Publisher
	batchSize int
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRelay constructs a Relay.
func NewRelay(store Store, publisher Publisher) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

// NewKafkaWriter builds the producer used by the relay.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// payloadOf returns the event payload, or null when it is empty or not
// valid JSON, so one bad row cannot block the batch.
func payloadOf(ev models.ShiftEvent) json.RawMessage {
	if len(ev.Payload) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(ev.Payload) {
		utils.Logger.WithField("event_id", ev.ID).Warn("outbox payload is not valid JSON, relaying null")
		return json.RawMessage("null")
	}
	return json.RawMessage(ev.Payload)
}

// Flush relays one batch and returns how many events were sent. Events of
// one application share a message key so they stay ordered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(pending))
	for _, ev := range pending {
		value, err := json.Marshal(envelope{
			ID:            ev.ID,
			Type:          ev.Type,
			ApplicationID: ev.ApplicationID,
			ActorID:       ev.ActorID,
			OccurredAt:    ev.CreatedAt,
			Payload:       payloadOf(ev),
		})
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.ApplicationID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}

	if err := r.publisher.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}

	ids := lo.Map(pending, func(ev models.ShiftEvent, _ int) uuid.UUID { return ev.ID })
	if err := r.store.MarkSent(ctx, ids, r.now()); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Start schedules Flush on the given cron spec, e.g. "@every 30s".
func (r *Relay) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := r.Flush(ctx)
		if err != nil {
			utils.Logger.WithError(err).Error("outbox relay failed")
			return
		}
		if n > 0 {
			utils.Logger.WithField("count", n).Debug("outbox events relayed")
		}
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running flush.
func (r *Relay) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
