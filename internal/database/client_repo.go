package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClientRepository provides read access to billed clients
type ClientRepository struct {
	collection *mongo.Collection
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *MongoDB) *ClientRepository {
	return &ClientRepository{
		collection: db.GetCollection(CollectionClients),
	}
}

// ListLinked retrieves every client linked to an account, projected to the
// fields the scanner needs
func (r *ClientRepository) ListLinked(ctx context.Context) ([]model.Client, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"system_id": bson.M{"$exists": true, "$ne": ""},
	}
	opts := options.Find().SetProjection(bson.M{
		"name":      1,
		"system_id": 1,
		"due_date":  1,
	})

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var clients []model.Client
	if err := cursor.All(ctxTimeout, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}

	return clients, nil
}
