// Package orderstest provides an in-memory store for exercising the order engine.
//
// Writes inside a transaction are applied immediately under a mutex and undone if the
// transaction aborts or its commit fails, so the conditional decrement stays the only guard
// against oversell, exactly as with the real store.
package orderstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

type txKey struct{}

type tx struct {
	undo []func()
}

// Store implements orders.TxRunner, orders.InventoryStore, orders.OrderStore and orders.EventStore.
type Store struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]models.Record
	orders  map[primitive.ObjectID]models.Order
	events  []models.OutboxEvent

	calls atomic.Int64

	// CommitErr, when set, fails every commit after the body succeeded.
	CommitErr error
	// FindErr, InsertOrderErr and InsertEventErr make the matching operation fail.
	FindErr        error
	InsertOrderErr error
	InsertEventErr error
	// BeforeDecrement runs right before the conditional decrement, outside the store lock.
	BeforeDecrement func(id primitive.ObjectID)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[primitive.ObjectID]models.Record),
		orders:  make(map[primitive.ObjectID]models.Order),
	}
}

// PutRecord seeds a record, assigning an ID when it has none.
func (s *Store) PutRecord(record models.Record) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	s.records[record.ID] = record
	return record.ID
}

// SetQty overwrites the stock of a record.
func (s *Store) SetQty(id primitive.ObjectID, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.records[id]
	record.Qty = qty
	s.records[id] = record
}

// Qty returns the committed stock of a record.
func (s *Store) Qty(id primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Qty
}

// SetPrice overwrites the price of a record.
func (s *Store) SetPrice(id primitive.ObjectID, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.records[id]
	record.Price = price
	s.records[id] = record
}

// Orders returns a snapshot of the stored orders.
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, order)
	}
	return out
}

// Events returns a snapshot of the stored outbox events.
func (s *Store) Events() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutboxEvent(nil), s.events...)
}

// Calls reports how many store operations were issued.
func (s *Store) Calls() int64 {
	return s.calls.Load()
}

// WithTransaction runs fn and rolls back its writes when fn or the commit fails.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls.Add(1)
	if _, nested := ctx.Value(txKey{}).(*tx); nested {
		return errors.New("nested transactions are not supported")
	}

	t := &tx{}
	err := fn(context.WithValue(ctx, txKey{}, t))
	if err == nil {
		err = s.CommitErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.rollback(t)
		return err
	}
	return nil
}

func (s *Store) rollback(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (s *Store) record(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) FindRecordByID(ctx context.Context, id primitive.ObjectID) (*models.Record, error) {
	s.calls.Add(1)
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *Store) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Record, error) {
	s.calls.Add(1)
	if s.BeforeDecrement != nil {
		s.BeforeDecrement(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.Qty < qty {
		return nil, nil
	}
	record.Qty -= qty
	s.records[id] = record
	s.record(ctx, func() {
		restored := s.records[id]
		restored.Qty += qty
		s.records[id] = restored
	})
	return &record, nil
}

func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	s.calls.Add(1)
	if s.InsertOrderErr != nil {
		return s.InsertOrderErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if order.IdempotencyKey != "" {
		for _, existing := range s.orders {
			if existing.IdempotencyKey == order.IdempotencyKey {
				return apperr.Conflict("orderstest.InsertOrder", "duplicate idempotency key", nil)
			}
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	id := order.ID
	s.orders[id] = *order
	s.record(ctx, func() { delete(s.orders, id) })
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.calls.Add(1)
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.IdempotencyKey == key {
			found := order
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertEvent(ctx context.Context, event *models.OutboxEvent) error {
	s.calls.Add(1)
	if s.InsertEventErr != nil {
		return s.InsertEventErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	s.events = append(s.events, *event)
	id := event.ID
	s.record(ctx, func() {
		for i, stored := range s.events {
			if stored.ID == id {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}
