package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/recordshop/internal/domain/models"
)

// InsertEvent appends an outbox event. Called with a session context it joins the transaction.
func (r *MongoDBRepository) InsertEvent(ctx context.Context, event *models.OutboxEvent) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if _, err := r.outbox().InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// PendingEvents returns up to limit undelivered events, oldest first.
func (r *MongoDBRepository) PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.outbox().Find(ctx, bson.M{"status": models.OutboxPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending events: %w", err)
	}

	var events []models.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode pending events: %w", err)
	}
	return events, nil
}

// MarkEventsSent flags delivered events.
func (r *MongoDBRepository) MarkEventsSent(ctx context.Context, ids []primitive.ObjectID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.outbox().UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": models.OutboxSent, "sentAt": at}},
	)
	if err != nil {
		return fmt.Errorf("mark events sent: %w", err)
	}
	return nil
}

// MarkEventFailed records a failed delivery attempt. A final failure parks the event.
func (r *MongoDBRepository) MarkEventFailed(ctx context.Context, id primitive.ObjectID, attempts int, final bool, lastErr string) error {
	status := models.OutboxPending
	if final {
		status = models.OutboxFailed
	}
	_, err := r.outbox().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "attempts": attempts, "lastError": lastErr}},
	)
	if err != nil {
		return fmt.Errorf("mark event %s failed: %w", id.Hex(), err)
	}
	return nil
}
