package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// CanTransitionTo reports whether an order in status s may move to next.
// The empty status stands for an order that does not exist yet.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case "":
		return next == OrderStatusPending || next == OrderStatusConfirmed
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusCancelled
	default:
		return false
	}
}

// Order is a purchase of a quantity of one record at the price captured when it was placed.
type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecordID       primitive.ObjectID `bson:"recordId" json:"recordId"`
	Quantity       int                `bson:"quantity" json:"quantity"`
	UnitPrice      float64            `bson:"unitPrice" json:"unitPrice"`
	TotalPrice     float64            `bson:"totalPrice" json:"totalPrice"`
	Status         OrderStatus        `bson:"status" json:"status"`
	IdempotencyKey string             `bson:"idempotencyKey,omitempty" json:"-"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CreateOrderRequest is the input of an order placement.
type CreateOrderRequest struct {
	RecordID string `json:"recordId"`
	Quantity int    `json:"quantity"`
	// IdempotencyKey deduplicates retries of the same placement. Optional.
	IdempotencyKey string `json:"-"`
}
