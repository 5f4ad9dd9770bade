package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OutboxStatus tracks delivery of an outbox event.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// EventOrderConfirmed is emitted once per committed order.
const EventOrderConfirmed = "order.confirmed"

// OutboxEvent is written in the same transaction as the state change it announces.
type OutboxEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	AggregateID string             `bson:"aggregateId"`
	Type        string             `bson:"type"`
	Key         string             `bson:"key"`
	Payload     []byte             `bson:"payload"`
	Status      OutboxStatus       `bson:"status"`
	Attempts    int                `bson:"attempts"`
	LastError   string             `bson:"lastError,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	SentAt      *time.Time         `bson:"sentAt,omitempty"`
}

// OrderConfirmedPayload is the JSON body of an order.confirmed event.
type OrderConfirmedPayload struct {
	OrderID    string    `json:"orderId"`
	RecordID   string    `json:"recordId"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unitPrice"`
	TotalPrice float64   `json:"totalPrice"`
	CreatedAt  time.Time `json:"createdAt"`
}
