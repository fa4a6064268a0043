package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pharmtrack/internal/medicine"
)

// MongoStorage implements the Storage interface using MongoDB
type MongoStorage struct {
	client              *mongo.Client
	database            *mongo.Database
	kvCollection        *mongo.Collection
	doseEventCollection *mongo.Collection
}

// entriesDocument holds the serialized medicine list under its key.
type entriesDocument struct {
	Key       string            `bson:"_id"`
	Entries   []*medicine.Entry `bson:"entries"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// NewMongoStorage creates a new MongoDB storage instance
func NewMongoStorage(connectionString, databaseName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	err = client.Ping(ctx, nil)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(databaseName)

	ms := &MongoStorage{
		client:              client,
		database:            database,
		kvCollection:        database.Collection("kv"),
		doseEventCollection: database.Collection("dose_events"),
	}

	_, err = ms.doseEventCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entry_id", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create dose event index: %w", err)
	}

	return ms, nil
}

// Close closes the MongoDB connection
func (ms *MongoStorage) Close(ctx context.Context) error {
	return ms.client.Disconnect(ctx)
}

// Medicine list

func (ms *MongoStorage) LoadEntries() ([]*medicine.Entry, error) {
	ctx := context.Background()

	var doc entriesDocument
	err := ms.kvCollection.FindOne(ctx, bson.M{"_id": EntriesKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []*medicine.Entry{}, nil
		}
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	if doc.Entries == nil {
		return []*medicine.Entry{}, nil
	}
	return doc.Entries, nil
}

func (ms *MongoStorage) SaveEntries(entries []*medicine.Entry) error {
	ctx := context.Background()

	if entries == nil {
		entries = []*medicine.Entry{}
	}
	doc := entriesDocument{
		Key:       EntriesKey,
		Entries:   entries,
		UpdatedAt: time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)

	_, err := ms.kvCollection.ReplaceOne(ctx, bson.M{"_id": EntriesKey}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save entries: %w", err)
	}

	return nil
}

// DoseEvent operations

func (ms *MongoStorage) CreateDoseEvent(e *medicine.DoseEvent) error {
	ctx := context.Background()

	_, err := ms.doseEventCollection.InsertOne(ctx, e)
	if err != nil {
		return fmt.Errorf("failed to create dose event: %w", err)
	}

	return nil
}

func (ms *MongoStorage) GetDoseEvent(id string) (*medicine.DoseEvent, error) {
	ctx := context.Background()

	var e medicine.DoseEvent
	err := ms.doseEventCollection.FindOne(ctx, bson.M{"id": id}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDoseEventNotFound
		}
		return nil, fmt.Errorf("failed to get dose event: %w", err)
	}

	return &e, nil
}

func (ms *MongoStorage) ListDoseEvents(entryID string) ([]*medicine.DoseEvent, error) {
	ctx := context.Background()

	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})
	cursor, err := ms.doseEventCollection.Find(ctx, bson.M{"entry_id": entryID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list dose events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*medicine.DoseEvent
	for cursor.Next(ctx) {
		var e medicine.DoseEvent
		if err := cursor.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode dose event: %w", err)
		}
		events = append(events, &e)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return events, nil
}

func (ms *MongoStorage) DeleteDoseEvents(entryID string) error {
	ctx := context.Background()

	_, err := ms.doseEventCollection.DeleteMany(ctx, bson.M{"entry_id": entryID})
	if err != nil {
		return fmt.Errorf("failed to delete dose events: %w", err)
	}

	return nil
}

func (ms *MongoStorage) Clear() error {
	ctx := context.Background()

	if _, err := ms.kvCollection.DeleteOne(ctx, bson.M{"_id": EntriesKey}); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if _, err := ms.doseEventCollection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear dose events: %w", err)
	}

	return nil
}
