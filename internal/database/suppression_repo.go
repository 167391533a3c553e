package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SuppressionRepository stores notification cool-down records
type SuppressionRepository struct {
	collection *mongo.Collection
}

// NewSuppressionRepository creates a new suppression repository
func NewSuppressionRepository(db *MongoDB) *SuppressionRepository {
	return &SuppressionRepository{
		collection: db.GetCollection(CollectionSuppressions),
	}
}

// FindActive returns the newest unexpired suppression for (type, entity),
// or nil when the alert may be sent
func (r *SuppressionRepository) FindActive(ctx context.Context, notificationType, entityID string, now time.Time) (*model.NotificationSuppression, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"type":       notificationType,
		"entity_id":  entityID,
		"expires_at": bson.M{"$gt": now},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "expires_at", Value: -1}})

	var record model.NotificationSuppression
	err := r.collection.FindOne(ctxTimeout, filter, opts).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find suppression: %w", err)
	}

	return &record, nil
}

// Create inserts a new suppression record
func (r *SuppressionRepository) Create(ctx context.Context, record *model.NotificationSuppression) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctxTimeout, record); err != nil {
		return fmt.Errorf("failed to create suppression: %w", err)
	}

	return nil
}

// Delete removes a suppression record, used when the alert it reserved was
// never delivered
func (r *SuppressionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctxTimeout, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete suppression: %w", err)
	}

	return nil
}
