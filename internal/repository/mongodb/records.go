package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/recordshop/internal/domain/apperr"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

// FindRecordByID returns nil without error when the record does not exist.
func (r *MongoDBRepository) FindRecordByID(ctx context.Context, id primitive.ObjectID) (*models.Record, error) {
	var record models.Record
	err := r.records().FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record %s: %w", id.Hex(), err)
	}
	return &record, nil
}

// DecrementStock subtracts qty only while the stored stock is at least qty. The predicate is
// evaluated by the server at write time, so concurrent decrements cannot oversell.
func (r *MongoDBRepository) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Record, error) {
	filter := bson.M{"_id": id, "qty": bson.M{"$gte": qty}}
	update := bson.M{
		"$inc": bson.M{"qty": -qty},
		"$set": bson.M{"lastModified": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record models.Record
	err := r.records().FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decrement stock of %s: %w", id.Hex(), err)
	}
	return &record, nil
}

// InsertRecord stores a new record. A duplicate artist/album/format yields a Conflict.
func (r *MongoDBRepository) InsertRecord(ctx context.Context, record *models.Record) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if record.Created.IsZero() {
		record.Created = now
	}
	record.LastModified = now

	if _, err := r.records().InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("mongodb.InsertRecord", "record already exists", err)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// InsertRecords bulk-inserts seed data and returns how many documents were written.
func (r *MongoDBRepository) InsertRecords(ctx context.Context, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(records))
	for i := range records {
		if records[i].Created.IsZero() {
			records[i].Created = now
		}
		records[i].LastModified = now
		docs = append(docs, records[i])
	}

	res, err := r.records().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if res != nil && err != nil {
		return len(res.InsertedIDs), fmt.Errorf("insert records: %w", err)
	}
	if err != nil {
		return 0, fmt.Errorf("insert records: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// DeleteAllRecords empties the records collection.
func (r *MongoDBRepository) DeleteAllRecords(ctx context.Context) (int64, error) {
	res, err := r.records().DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return res.DeletedCount, nil
}

// UpdateRecord applies the non-nil fields of changes with $set and returns the updated record,
// or nil when it does not exist. tracklist replaces the stored tracklist when not nil.
func (r *MongoDBRepository) UpdateRecord(ctx context.Context, id primitive.ObjectID, changes models.UpdateRecordRequest, tracklist []models.TrackItem) (*models.Record, error) {
	set := bson.M{"lastModified": time.Now().UTC()}
	if changes.Artist != nil {
		set["artist"] = *changes.Artist
	}
	if changes.Album != nil {
		set["album"] = *changes.Album
	}
	if changes.Format != nil {
		set["format"] = *changes.Format
	}
	if changes.Category != nil {
		set["category"] = *changes.Category
	}
	if changes.Price != nil {
		set["price"] = *changes.Price
	}
	if changes.Qty != nil {
		set["qty"] = *changes.Qty
	}
	if changes.MBID != nil {
		set["mbid"] = *changes.MBID
	}
	if tracklist != nil {
		set["tracklist"] = tracklist
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record models.Record
	err := r.records().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&record)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, nil
	case mongo.IsDuplicateKeyError(err):
		return nil, apperr.Conflict("mongodb.UpdateRecord", "record already exists", err)
	case err != nil:
		return nil, fmt.Errorf("update record %s: %w", id.Hex(), err)
	}
	return &record, nil
}

// SearchRecords returns one page of records matching filter and the total number of matches.
// Page and Limit must already be normalized.
func (r *MongoDBRepository) SearchRecords(ctx context.Context, filter models.RecordFilter) ([]models.Record, int64, error) {
	query := recordQuery(filter)

	opts := options.Find().
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit)).
		SetSort(bson.D{{Key: "artist", Value: 1}, {Key: "album", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.records().Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find records: %w", err)
	}

	records := make([]models.Record, 0, filter.Limit)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("decode records: %w", err)
	}

	total, err := r.records().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}

func recordQuery(filter models.RecordFilter) bson.M {
	query := bson.M{}
	if filter.Query != "" {
		query["$text"] = bson.M{"$search": filter.Query}
	}
	if filter.Artist != "" {
		query["artist"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Artist), Options: "i"}
	}
	if filter.Album != "" {
		query["album"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Album), Options: "i"}
	}
	if filter.Format != "" {
		query["format"] = filter.Format
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	return query
}
