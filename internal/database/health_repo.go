package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HealthRepository persists the singleton automation health record
type HealthRepository struct {
	collection *mongo.Collection
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(db *MongoDB) *HealthRepository {
	return &HealthRepository{
		collection: db.GetCollection(CollectionHealth),
	}
}

// Get retrieves the latest health record. A missing record returns nil
// without error so callers can treat it as "never reported".
func (r *HealthRepository) Get(ctx context.Context) (*model.HealthRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var record model.HealthRecord
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": model.HealthRecordID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get health record: %w", err)
	}

	return &record, nil
}

// Save upserts the health record
func (r *HealthRepository) Save(ctx context.Context, record *model.HealthRecord) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	record.ID = model.HealthRecordID
	record.UpdatedAt = time.Now().UTC()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctxTimeout, bson.M{"_id": model.HealthRecordID}, record, opts); err != nil {
		return fmt.Errorf("failed to save health record: %w", err)
	}

	return nil
}
