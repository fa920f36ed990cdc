package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/repositories"
	"portfolio-analytics/pkg/database"
)

// MongoCacheRepository implements CacheRepository using MongoDB. The TTL
// index created at startup removes old documents, but the monitor only runs
// once a minute, so reads also check the age.
type MongoCacheRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
	ttl        time.Duration
}

// NewCacheRepository creates a new MongoDB cache repository
func NewCacheRepository(db *database.MongoDB, ttl time.Duration) repositories.CacheRepository {
	return &MongoCacheRepository{
		db:         db,
		collection: db.Collection(database.AnalysisCacheCollection),
		ttl:        ttl,
	}
}

func (r *MongoCacheRepository) Name() string {
	return "mongo"
}

func (r *MongoCacheRepository) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := r.collection.FindOne(ctx, bson.M{"_id": fingerprint}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if r.ttl > 0 && time.Since(entry.CreatedAt) > r.ttl {
		return nil, repositories.ErrCacheMiss
	}

	return &entry, nil
}

func (r *MongoCacheRepository) Set(ctx context.Context, entry *models.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": entry.Fingerprint}, entry, opts)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}

	return nil
}

func (r *MongoCacheRepository) Delete(ctx context.Context, fingerprint string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": fingerprint}); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

func (r *MongoCacheRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to clear analysis cache: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoCacheRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// PurgeExpired removes entries the TTL monitor has not reached yet
func (r *MongoCacheRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge analysis cache: %w", err)
	}
	return result.DeletedCount, nil
}
