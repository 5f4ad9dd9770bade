package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

// InsertOrder stores order and assigns its ID. A reused idempotency key yields a Conflict.
func (r *MongoDBRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := r.orders().InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("mongodb.InsertOrder", "duplicate idempotency key", err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// FindOrderByID returns nil without error when the order does not exist.
func (r *MongoDBRepository) FindOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return r.findOrder(ctx, bson.M{"_id": id})
}

// FindOrderByIdempotencyKey returns nil without error when no order carries key.
func (r *MongoDBRepository) FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return r.findOrder(ctx, bson.M{"idempotencyKey": key})
}

func (r *MongoDBRepository) findOrder(ctx context.Context, filter bson.M) (*models.Order, error) {
	var order models.Order
	err := r.orders().FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

// SalesBetween aggregates confirmed orders created in [from, to) per record.
func (r *MongoDBRepository) SalesBetween(ctx context.Context, from, to time.Time) ([]models.RecordSales, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":    models.OrderStatusConfirmed,
			"createdAt": bson.M{"$gte": from, "$lt": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$recordId",
			"orders":  bson.M{"$sum": 1},
			"units":   bson.M{"$sum": "$quantity"},
			"revenue": bson.M{"$sum": "$totalPrice"},
		}}},
		{{Key: "$sort", Value: bson.M{"revenue": -1}}},
	}

	cursor, err := r.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}

	var sales []models.RecordSales
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("decode sales: %w", err)
	}
	return sales, nil
}
