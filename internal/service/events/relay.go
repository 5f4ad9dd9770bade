// Package events delivers outbox events written by the order engine to Kafka.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/domain/models"
)

const (
	defaultBatchSize = 100
	// MaxAttempts is the number of deliveries tried before an event is parked as failed.
	MaxAttempts = 5
)

// Store reads and settles outbox events.
type Store interface {
	PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventsSent(ctx context.Context, ids []primitive.ObjectID, at time.Time) error
	MarkEventFailed(ctx context.Context, id primitive.ObjectID, attempts int, final bool, lastErr string) error
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves pending outbox events to a Kafka topic.
type Relay struct {
	store     Store
	producer  Producer
	topic     string
	batchSize int
	logger    *zap.Logger
	now       func() time.Time

	running sync.Mutex
}

func NewRelay(store Store, producer Producer, topic string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:     store,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Flush publishes one batch of pending events and returns how many were delivered.
// Overlapping calls return immediately.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if !r.running.TryLock() {
		r.logger.Debug("outbox relay already running, skipping")
		return 0, nil
	}
	defer r.running.Unlock()

	pending, err := r.store.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Events sharing a key with a failed event wait for the next flush to keep per-key order.
	blocked := make(map[string]struct{})
	sent := make([]primitive.ObjectID, 0, len(pending))
	for _, event := range pending {
		if _, ok := blocked[event.Key]; ok {
			continue
		}
		if err := r.producer.WriteMessages(ctx, r.message(event)); err != nil {
			r.fail(ctx, event, err)
			blocked[event.Key] = struct{}{}
			continue
		}
		sent = append(sent, event.ID)
	}

	if err := r.store.MarkEventsSent(ctx, sent, r.now().UTC()); err != nil {
		r.logger.Error("failed to mark outbox events sent", zap.Int("count", len(sent)), zap.Error(err))
		return 0, err
	}
	if len(sent) > 0 {
		r.logger.Info("outbox events published", zap.Int("count", len(sent)), zap.String("topic", r.topic))
	}
	return len(sent), nil
}

func (r *Relay) message(event models.OutboxEvent) kafka.Message {
	return kafka.Message{
		Topic: r.topic,
		Key:   []byte(event.Key),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.Hex())},
			{Key: "aggregate_id", Value: []byte(event.AggregateID)},
		},
		Time: event.CreatedAt,
	}
}

func (r *Relay) fail(ctx context.Context, event models.OutboxEvent, cause error) {
	attempts := event.Attempts + 1
	final := attempts >= MaxAttempts

	r.logger.Warn("outbox dispatch failed",
		zap.String("event_id", event.ID.Hex()),
		zap.Int("attempts", attempts),
		zap.Bool("final", final),
		zap.Error(cause),
	)
	if err := r.store.MarkEventFailed(ctx, event.ID, attempts, final, cause.Error()); err != nil {
		r.logger.Error("failed to record outbox failure", zap.String("event_id", event.ID.Hex()), zap.Error(err))
	}
}
