package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	recordsCollection = "records"
	ordersCollection  = "orders"
	outboxCollection  = "outbox"
)

// MongoDBRepository is the document store behind records, orders and the outbox.
// Multi-document transactions require the server to run as a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// WithTransaction runs fn in a snapshot transaction with majority write concern. The driver
// re-runs fn on transient transaction errors such as write conflicts and retries the commit on
// unknown commit results.
func (r *MongoDBRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txOpts)
	return err
}

// EnsureIndexes creates the indexes the stores rely on. It is idempotent.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		recordsCollection: {
			{
				Keys:    bson.D{{Key: "artist", Value: 1}, {Key: "album", Value: 1}, {Key: "format", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("artist_album_format_unique"),
			},
			{
				Keys: bson.D{
					{Key: "artist", Value: "text"},
					{Key: "album", Value: "text"},
					{Key: "format", Value: "text"},
					{Key: "category", Value: "text"},
				},
				Options: options.Index().SetName("records_text"),
			},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		ordersCollection: {
			{
				Keys: bson.D{{Key: "idempotencyKey", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("idempotency_key_unique").
					SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "recordId", Value: 1}}},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for collection, idx := range indexes {
		if _, err := r.db.Collection(collection).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

// Ping checks the connection.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) records() *mongo.Collection {
	return r.db.Collection(recordsCollection)
}

func (r *MongoDBRepository) orders() *mongo.Collection {
	return r.db.Collection(ordersCollection)
}

func (r *MongoDBRepository) outbox() *mongo.Collection {
	return r.db.Collection(outboxCollection)
}
