package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

const (
	opCreateOrder = "orders.CreateOrder"
	opGetOrder    = "orders.GetOrder"

	tracerName = "github.com/mamadbah2/recordshop/internal/service/orders"

	defaultTxTimeout = 10 * time.Second
)

// Placer is the order surface exposed to the HTTP layer.
type Placer interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// Service places orders against live inventory. It holds no locks: concurrent placements for the
// same record are arbitrated by the conditional stock decrement inside the store transaction.
type Service struct {
	tx      TxRunner
	records InventoryStore
	orders  OrderStore
	events  EventStore
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService wires the order engine. events may be nil, in which case no outbox event is written.
func NewService(tx TxRunner, records InventoryStore, orders OrderStore, events EventStore, cfg config.OrdersConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.TxTimeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &Service{
		tx:      tx,
		records: records,
		orders:  orders,
		events:  events,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// CreateOrder verifies and decrements stock and records a CONFIRMED order as one atomic unit.
// Either both effects commit or neither becomes visible.
func (s *Service) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	recordID, err := primitive.ObjectIDFromHex(req.RecordID)
	if err != nil {
		return nil, apperr.InvalidArgument(opCreateOrder, "invalid recordId")
	}
	if req.Quantity < 1 {
		return nil, apperr.InvalidArgument(opCreateOrder, "quantity must be a positive integer")
	}

	ctx, span := s.tracer.Start(ctx, opCreateOrder, trace.WithAttributes(
		attribute.String("record.id", req.RecordID),
		attribute.Int("order.quantity", req.Quantity),
	))
	defer span.End()

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		placed   *models.Order
		replayed bool
	)
	err = s.tx.WithTransaction(txCtx, func(ctx context.Context) error {
		// The body can be re-run on a transient conflict; start from scratch each time.
		placed, replayed = nil, false

		order, existing, err := s.placeOrder(ctx, recordID, req)
		if err != nil {
			return err
		}
		placed, replayed = order, existing
		return nil
	})
	if err != nil && req.IdempotencyKey != "" && apperr.Is(err, apperr.KindConflict) {
		// A concurrent placement with the same key committed first.
		placed, err = s.orderForKey(ctx, recordID, req)
		replayed = err == nil
	}
	if err != nil {
		err = s.classify(txCtx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		s.logFailure(req, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", placed.ID.Hex()), attribute.Bool("order.replayed", replayed))
	if replayed {
		s.logger.Info("order replayed for idempotency key",
			zap.String("order_id", placed.ID.Hex()),
			zap.String("record_id", req.RecordID))
		return placed, nil
	}

	s.logger.Info("order placed",
		zap.String("order_id", placed.ID.Hex()),
		zap.String("record_id", req.RecordID),
		zap.Int("quantity", placed.Quantity),
		zap.Float64("total_price", placed.TotalPrice))
	return placed, nil
}

// placeOrder is the transaction body. It returns the existing order and true when the
// idempotency key was already used.
func (s *Service) placeOrder(ctx context.Context, recordID primitive.ObjectID, req models.CreateOrderRequest) (*models.Order, bool, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, false, apperr.Internal(opCreateOrder, "failed to look up idempotency key", err)
		}
		if existing != nil {
			if err := sameRequest(existing, recordID, req.Quantity); err != nil {
				return nil, false, err
			}
			return existing, true, nil
		}
	}

	record, err := s.records.FindRecordByID(ctx, recordID)
	if err != nil {
		return nil, false, apperr.Internal(opCreateOrder, "failed to load record", err)
	}
	if record == nil {
		return nil, false, apperr.NotFound(opCreateOrder, "record not found")
	}

	// Fast path only. The conditional decrement below is the authoritative check.
	if req.Quantity > record.Qty {
		return nil, false, apperr.InsufficientStock(opCreateOrder, "insufficient stock for requested quantity")
	}

	updated, err := s.records.DecrementStock(ctx, recordID, req.Quantity)
	if err != nil {
		return nil, false, apperr.Internal(opCreateOrder, "failed to reserve stock", err)
	}
	if updated == nil {
		return nil, false, apperr.InsufficientStock(opCreateOrder, "stock changed, not enough inventory")
	}

	unitPrice := updated.Price
	now := s.now().UTC()
	order := &models.Order{
		RecordID:       recordID,
		Quantity:       req.Quantity,
		UnitPrice:      unitPrice,
		TotalPrice:     totalPrice(unitPrice, req.Quantity),
		Status:         models.OrderStatusConfirmed,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.InsertOrder(ctx, order); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, false, err
		}
		return nil, false, apperr.Internal(opCreateOrder, "failed to create order", err)
	}

	if s.events != nil {
		event, err := confirmedEvent(order)
		if err != nil {
			return nil, false, apperr.Internal(opCreateOrder, "failed to encode order event", err)
		}
		if err := s.events.InsertEvent(ctx, event); err != nil {
			return nil, false, apperr.Internal(opCreateOrder, "failed to record order event", err)
		}
	}

	return order, false, nil
}

func (s *Service) orderForKey(ctx context.Context, recordID primitive.ObjectID, req models.CreateOrderRequest) (*models.Order, error) {
	existing, err := s.orders.FindOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, apperr.Internal(opCreateOrder, "failed to look up idempotency key", err)
	}
	if existing == nil {
		return nil, apperr.Internal(opCreateOrder, "idempotency key conflict without order", nil)
	}
	if err := sameRequest(existing, recordID, req.Quantity); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetOrder is a read-only point lookup.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, apperr.InvalidArgument(opGetOrder, "invalid order id")
	}

	ctx, span := s.tracer.Start(ctx, opGetOrder, trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.orders.FindOrderByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to fetch order", zap.String("order_id", orderID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperr.Internal(opGetOrder, "failed to fetch order", err)
	}
	if order == nil {
		return nil, apperr.NotFound(opGetOrder, "order not found")
	}
	return order, nil
}

// classify tags errors escaping the transaction. Tagged errors keep their kind, except that an
// expired time budget always surfaces as Unavailable.
func (s *Service) classify(txCtx context.Context, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal && (errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded)) {
		return apperr.Unavailable(opCreateOrder, "order placement timed out", err)
	}

	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		return err
	}
	return apperr.Internal(opCreateOrder, "failed to commit order", err)
}

func (s *Service) logFailure(req models.CreateOrderRequest, err error) {
	fields := []zap.Field{
		zap.String("record_id", req.RecordID),
		zap.Int("quantity", req.Quantity),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Error(err),
	}
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUnavailable:
		s.logger.Error("order placement failed", fields...)
	default:
		s.logger.Debug("order placement rejected", fields...)
	}
}

func sameRequest(existing *models.Order, recordID primitive.ObjectID, quantity int) error {
	if existing.RecordID != recordID || existing.Quantity != quantity {
		return apperr.InvalidArgument(opCreateOrder, "idempotency key reused with a different order")
	}
	return nil
}

func totalPrice(unitPrice float64, quantity int) float64 {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).InexactFloat64()
}

func confirmedEvent(order *models.Order) (*models.OutboxEvent, error) {
	payload, err := json.Marshal(models.OrderConfirmedPayload{
		OrderID:    order.ID.Hex(),
		RecordID:   order.RecordID.Hex(),
		Quantity:   order.Quantity,
		UnitPrice:  order.UnitPrice,
		TotalPrice: order.TotalPrice,
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return &models.OutboxEvent{
		AggregateID: order.ID.Hex(),
		Type:        models.EventOrderConfirmed,
		Key:         order.RecordID.Hex(),
		Payload:     payload,
		Status:      models.OutboxPending,
		CreatedAt:   order.CreatedAt,
	}, nil
}
