package orders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/recordshop/internal/domain/models"
)

// TxRunner runs fn inside one multi-document transaction. Stores called with the context handed
// to fn take part in that transaction. fn may be invoked more than once when the store retries a
// transient conflict, and an error returned by fn aborts the transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryStore is the part of the record store the engine needs.
type InventoryStore interface {
	// FindRecordByID returns nil without error when the record does not exist.
	FindRecordByID(ctx context.Context, id primitive.ObjectID) (*models.Record, error)
	// DecrementStock subtracts qty from the record only if its stock is still at least qty at
	// write time, and returns the updated record. It returns nil without error when the
	// predicate did not match.
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Record, error)
}

// OrderStore persists orders.
type OrderStore interface {
	// InsertOrder stores order and assigns its ID. A reused idempotency key yields an
	// apperr.KindConflict error.
	InsertOrder(ctx context.Context, order *models.Order) error
	// FindOrderByID returns nil without error when the order does not exist.
	FindOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	// FindOrderByIdempotencyKey returns nil without error when no order carries key.
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
}

// EventStore records outbox events next to the state change they announce.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.OutboxEvent) error
}
