package orders

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
	"github.com/mamadbah2/recordshop/internal/service/orders/orderstest"
)

func newTestService(store *orderstest.Store) *Service {
	return NewService(store, store, store, store, config.OrdersConfig{TxTimeout: time.Second}, nil)
}

func seedRecord(store *orderstest.Store, qty int, price float64) primitive.ObjectID {
	return store.PutRecord(models.Record{
		Artist:   "The Sisters of Mercy",
		Album:    "First and Last and Always",
		Format:   models.FormatVinyl,
		Category: models.CategoryRock,
		Price:    price,
		Qty:      qty,
	})
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func TestCreateOrder_Success(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if order.UnitPrice != 50 || order.TotalPrice != 100 {
		t.Errorf("expected unit 50 total 100, got unit %v total %v", order.UnitPrice, order.TotalPrice)
	}
	if order.Status != models.OrderStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", order.Status)
	}
	if order.RecordID != recordID || order.Quantity != 2 {
		t.Errorf("unexpected order %+v", order)
	}
	if order.ID.IsZero() {
		t.Error("expected order ID to be assigned")
	}
	if order.CreatedAt.IsZero() || !order.CreatedAt.Equal(order.UpdatedAt) {
		t.Errorf("expected matching timestamps, got %v / %v", order.CreatedAt, order.UpdatedAt)
	}
	if qty := store.Qty(recordID); qty != 8 {
		t.Errorf("expected stock 8, got %d", qty)
	}

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(events))
	}
	if events[0].Type != models.EventOrderConfirmed || events[0].AggregateID != order.ID.Hex() {
		t.Errorf("unexpected event %+v", events[0])
	}
	var payload models.OrderConfirmedPayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TotalPrice != 100 || payload.RecordID != recordID.Hex() {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestCreateOrder_TotalUsesDecimalArithmetic(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 19.99)
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 3})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.TotalPrice != 59.97 {
		t.Errorf("expected 59.97, got %v", order.TotalPrice)
	}
}

func TestCreateOrder_InvalidArguments(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)
	callsBefore := store.Calls()

	tests := []struct {
		name string
		req  models.CreateOrderRequest
	}{
		{name: "malformed id", req: models.CreateOrderRequest{RecordID: "not-an-id", Quantity: 1}},
		{name: "empty id", req: models.CreateOrderRequest{RecordID: "", Quantity: 1}},
		{name: "zero quantity", req: models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 0}},
		{name: "negative quantity", req: models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.req)
			assertKind(t, err, apperr.KindInvalidArgument)
		})
	}

	if store.Calls() != callsBefore {
		t.Errorf("expected no store access, got %d calls", store.Calls()-callsBefore)
	}
}

func TestCreateOrder_RecordNotFound(t *testing.T) {
	store := orderstest.NewStore()
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: primitive.NewObjectID().Hex(), Quantity: 1})
	assertKind(t, err, apperr.KindNotFound)

	if len(store.Orders()) != 0 {
		t.Error("expected no orders")
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 3, 50)
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 5})
	assertKind(t, err, apperr.KindInsufficientStock)

	if qty := store.Qty(recordID); qty != 3 {
		t.Errorf("expected stock unchanged at 3, got %d", qty)
	}
	if len(store.Orders()) != 0 || len(store.Events()) != 0 {
		t.Error("expected no order and no event")
	}
}

func TestCreateOrder_ConditionalDecrementIsAuthoritative(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 5, 50)
	svc := newTestService(store)

	// Another buyer takes the stock between the read and the write.
	var once sync.Once
	store.BeforeDecrement = func(id primitive.ObjectID) {
		once.Do(func() { store.SetQty(id, 1) })
	}

	_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2})
	assertKind(t, err, apperr.KindInsufficientStock)

	if qty := store.Qty(recordID); qty != 1 {
		t.Errorf("expected stock 1, got %d", qty)
	}
	if len(store.Orders()) != 0 {
		t.Error("expected no order")
	}
}

func TestCreateOrder_FailuresLeaveNoTrace(t *testing.T) {
	storeErr := errors.New("connection reset by peer")

	tests := []struct {
		name   string
		inject func(*orderstest.Store)
		want   apperr.Kind
	}{
		{name: "order insert fails", inject: func(s *orderstest.Store) { s.InsertOrderErr = storeErr }, want: apperr.KindInternal},
		{name: "event insert fails", inject: func(s *orderstest.Store) { s.InsertEventErr = storeErr }, want: apperr.KindInternal},
		{name: "commit fails", inject: func(s *orderstest.Store) { s.CommitErr = storeErr }, want: apperr.KindInternal},
		{name: "record read fails", inject: func(s *orderstest.Store) { s.FindErr = storeErr }, want: apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := orderstest.NewStore()
			recordID := seedRecord(store, 10, 50)
			tt.inject(store)
			svc := newTestService(store)

			_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 4})
			assertKind(t, err, tt.want)
			if !errors.Is(err, storeErr) {
				t.Errorf("expected cause to be preserved, got %v", err)
			}

			if qty := store.Qty(recordID); qty != 10 {
				t.Errorf("expected stock unchanged at 10, got %d", qty)
			}
			if len(store.Orders()) != 0 || len(store.Events()) != 0 {
				t.Error("expected no order and no event")
			}
		})
	}
}

func TestCreateOrder_Timeout(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	store.BeforeDecrement = func(primitive.ObjectID) { time.Sleep(50 * time.Millisecond) }
	svc := NewService(store, store, store, store, config.OrdersConfig{TxTimeout: 10 * time.Millisecond}, nil)

	_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 1})
	assertKind(t, err, apperr.KindUnavailable)

	if qty := store.Qty(recordID); qty != 10 {
		t.Errorf("expected stock unchanged at 10, got %d", qty)
	}
}

func TestCreateOrder_PriceCapturedAtOrderTime(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 1})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	store.SetPrice(recordID, 80)

	got, err := svc.GetOrder(context.Background(), order.ID.Hex())
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.UnitPrice != 50 || got.TotalPrice != 50 {
		t.Errorf("expected captured price 50, got unit %v total %v", got.UnitPrice, got.TotalPrice)
	}
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)
	req := models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2, IdempotencyKey: "checkout-42"}

	first, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("first placement failed: %v", err)
	}
	second, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("replayed placement failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the same order, got %s and %s", first.ID.Hex(), second.ID.Hex())
	}
	if qty := store.Qty(recordID); qty != 8 {
		t.Errorf("expected stock decremented once to 8, got %d", qty)
	}
	if len(store.Events()) != 1 {
		t.Errorf("expected a single event, got %d", len(store.Events()))
	}

	req.Quantity = 3
	_, err = svc.CreateOrder(context.Background(), req)
	assertKind(t, err, apperr.KindInvalidArgument)
}

func TestCreateOrder_IdempotencyKeyLostRaceReturnsWinner(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)
	req := models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2, IdempotencyKey: "checkout-77"}

	// The first placement passes its key lookup, then a second placement with the same key
	// commits before it reaches the decrement.
	var (
		interleaved atomic.Bool
		winner      *models.Order
		winnerErr   error
	)
	store.BeforeDecrement = func(primitive.ObjectID) {
		if interleaved.CompareAndSwap(false, true) {
			winner, winnerErr = svc.CreateOrder(context.Background(), req)
		}
	}

	loser, err := svc.CreateOrder(context.Background(), req)
	if winnerErr != nil {
		t.Fatalf("winning placement failed: %v", winnerErr)
	}
	if err != nil {
		t.Fatalf("losing placement failed: %v", err)
	}

	if loser.ID != winner.ID {
		t.Errorf("expected the winner's order %s, got %s", winner.ID.Hex(), loser.ID.Hex())
	}
	if qty := store.Qty(recordID); qty != 8 {
		t.Errorf("expected stock decremented once to 8, got %d", qty)
	}
	if n := len(store.Orders()); n != 1 {
		t.Errorf("expected 1 order, got %d", n)
	}
	if n := len(store.Events()); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
}

func TestCreateOrder_ConcurrentSameIdempotencyKey(t *testing.T) {
	const callers = 8

	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)
	req := models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2, IdempotencyKey: "checkout-88"}

	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := svc.CreateOrder(context.Background(), req)
			errs[i] = err
			if err == nil {
				ids[i] = order.ID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got order %s, expected %s", i, ids[i].Hex(), ids[0].Hex())
		}
	}
	if qty := store.Qty(recordID); qty != 8 {
		t.Errorf("expected stock decremented once to 8, got %d", qty)
	}
	if n := len(store.Orders()); n != 1 {
		t.Errorf("expected 1 order, got %d", n)
	}
	if n := len(store.Events()); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
}

func TestCreateOrder_ConcurrentSingleUnit(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 1, 50)
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
		others    atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 1})
			switch {
			case err == nil:
				successes.Add(1)
			case apperr.Is(err, apperr.KindInsufficientStock):
				rejected.Add(1)
			default:
				others.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || rejected.Load() != 1 || others.Load() != 0 {
		t.Errorf("expected 1 success and 1 rejection, got %d/%d/%d", successes.Load(), rejected.Load(), others.Load())
	}
	if qty := store.Qty(recordID); qty != 0 {
		t.Errorf("expected stock 0, got %d", qty)
	}
}

func TestCreateOrder_ConcurrentNeverOversells(t *testing.T) {
	const (
		initialStock  = 20
		totalRequests = 50
	)

	store := orderstest.NewStore()
	recordID := seedRecord(store, initialStock, 10)
	svc := newTestService(store)

	var wg sync.WaitGroup
	var unexpected atomic.Int32
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: quantity})
			if err != nil && !apperr.Is(err, apperr.KindInsufficientStock) {
				unexpected.Add(1)
			}
		}(1 + rand.Intn(3))
	}
	wg.Wait()

	if unexpected.Load() != 0 {
		t.Errorf("expected only stock rejections, got %d other failures", unexpected.Load())
	}

	ordered := 0
	for _, order := range store.Orders() {
		if order.Status != models.OrderStatusConfirmed {
			t.Errorf("unexpected status %s", order.Status)
		}
		ordered += order.Quantity
	}

	qty := store.Qty(recordID)
	if qty < 0 {
		t.Fatalf("stock went negative: %d", qty)
	}
	if ordered > initialStock {
		t.Errorf("oversold: %d ordered out of %d", ordered, initialStock)
	}
	if qty+ordered != initialStock {
		t.Errorf("stock %d plus ordered %d does not add up to %d", qty, ordered, initialStock)
	}
	if len(store.Events()) != len(store.Orders()) {
		t.Errorf("expected one event per order, got %d events for %d orders", len(store.Events()), len(store.Orders()))
	}
}

func TestGetOrder(t *testing.T) {
	store := orderstest.NewStore()
	recordID := seedRecord(store, 10, 50)
	svc := newTestService(store)

	placed, err := svc.CreateOrder(context.Background(), models.CreateOrderRequest{RecordID: recordID.Hex(), Quantity: 2})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	first, err := svc.GetOrder(context.Background(), placed.ID.Hex())
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	second, err := svc.GetOrder(context.Background(), placed.ID.Hex())
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical reads, got %+v and %+v", first, second)
	}
	if qty := store.Qty(recordID); qty != 8 {
		t.Errorf("expected reads to leave stock at 8, got %d", qty)
	}
}

func TestGetOrder_Errors(t *testing.T) {
	store := orderstest.NewStore()
	svc := newTestService(store)

	_, err := svc.GetOrder(context.Background(), primitive.NewObjectID().Hex())
	assertKind(t, err, apperr.KindNotFound)

	_, err = svc.GetOrder(context.Background(), "invalid-id")
	assertKind(t, err, apperr.KindInvalidArgument)

	store.FindErr = errors.New("server selection timeout")
	_, err = svc.GetOrder(context.Background(), primitive.NewObjectID().Hex())
	assertKind(t, err, apperr.KindInternal)
}
