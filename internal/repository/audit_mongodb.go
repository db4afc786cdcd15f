package repository

import (
	"context"
	"time"

	"distrihub-sync-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditRepository is the sync attempt audit trail. Every replay a
// device pushes upstream leaves one entry, success or failure, so
// support can reconstruct what happened to an order that "was created
// offline but never showed up".
type AuditRepository interface {
	InsertAttempt(ctx context.Context, attempt *model.SyncAttempt) error
	GetAttempts(ctx context.Context, limit, offset int) ([]model.SyncAttempt, int64, error)
	GetAttemptsForOperation(ctx context.Context, operationID int64, limit, offset int) ([]model.SyncAttempt, int64, error)
	Close() error
}

// MongoDBAuditRepository implements AuditRepository for MongoDB
type MongoDBAuditRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBAuditRepository connects and prepares the collection. A
// TTL index on created_at expires entries after retention (skipped
// when retention is zero); a compound index on operation_id+created_at
// backs the per-operation history lookup.
func NewMongoDBAuditRepository(uri, dbName, collectionName string, retention time.Duration) (*MongoDBAuditRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	collection := client.Database(dbName).Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "operation_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}

	return &MongoDBAuditRepository{
		client:     client,
		collection: collection,
	}, nil
}

// InsertAttempt inserts a new audit entry
func (r *MongoDBAuditRepository) InsertAttempt(ctx context.Context, attempt *model.SyncAttempt) error {
	attempt.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, attempt)
	return err
}

// GetAttempts returns audit entries with pagination, newest first
func (r *MongoDBAuditRepository) GetAttempts(ctx context.Context, limit, offset int) ([]model.SyncAttempt, int64, error) {
	return r.find(ctx, bson.M{}, limit, offset)
}

// GetAttemptsForOperation returns the attempt history of one queued
// operation, newest first.
func (r *MongoDBAuditRepository) GetAttemptsForOperation(ctx context.Context, operationID int64, limit, offset int) ([]model.SyncAttempt, int64, error) {
	return r.find(ctx, bson.M{"operation_id": operationID}, limit, offset)
}

func (r *MongoDBAuditRepository) find(ctx context.Context, filter bson.M, limit, offset int) ([]model.SyncAttempt, int64, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})
	findOptions.SetLimit(int64(limit))
	findOptions.SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var attempts []model.SyncAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, 0, err
	}

	// Ensure not nil slice for JSON
	if attempts == nil {
		attempts = []model.SyncAttempt{}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return attempts, count, nil
}

// Close closes the MongoDB connection
func (r *MongoDBAuditRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ AuditRepository = (*MongoDBAuditRepository)(nil)
