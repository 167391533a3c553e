package database

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	if err := createIndexes(ctx, db, CollectionAccounts, accountIndexes()); err != nil {
		return err
	}

	if err := createIndexes(ctx, db, CollectionClients, clientIndexes()); err != nil {
		return err
	}

	if err := createIndexes(ctx, db, CollectionRenewalTasks, renewalTaskIndexes()); err != nil {
		return err
	}

	if err := createIndexes(ctx, db, CollectionSuppressions, suppressionIndexes()); err != nil {
		return err
	}

	dropRetiredIndexes(ctx, db)

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func createIndexes(ctx context.Context, db *MongoDB, name string, indexes []mongo.IndexModel) error {
	collection := db.GetCollection(name)

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctxTimeout, indexes)
	if err != nil {
		return err
	}

	slog.Info("Created indexes", "collection", name, "count", len(indexes))
	return nil
}

func accountIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "system_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_system_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_expires_at"),
		},
	}
}

func clientIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "system_id", Value: 1},
				{Key: "due_date", Value: 1},
			},
			Options: options.Index().SetName("idx_system_id_due_date"),
		},
	}
}

func renewalTaskIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			// At most one pending/claimed task per account.
			Keys: bson.D{{Key: "system_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}).
				SetName("idx_system_id_active_unique"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_status_created_at"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "claimed_at", Value: 1},
			},
			Options: options.Index().SetName("idx_status_claimed_at"),
		},
		{
			Keys:    bson.D{{Key: "metadata.trace_id", Value: 1}},
			Options: options.Index().SetName("idx_trace_id"),
		},
	}
}

func suppressionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "entity_id", Value: 1},
				{Key: "expires_at", Value: -1},
			},
			Options: options.Index().SetName("idx_type_entity_expires_at"),
		},
	}
}

// retiredIndexes were created by earlier releases and are dropped on startup
var retiredIndexes = map[string][]string{
	// expired suppression records are kept and ignored, never purged
	CollectionSuppressions: {"idx_expires_at_ttl"},
}

func dropRetiredIndexes(ctx context.Context, db *MongoDB) {
	for name, indexes := range retiredIndexes {
		collection := db.GetCollection(name)
		for _, index := range indexes {
			ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := collection.Indexes().DropOne(ctxTimeout, index)
			cancel()

			var cmdErr mongo.CommandError
			switch {
			case err == nil:
				slog.Info("Dropped retired index", "collection", name, "index", index)
			case errors.As(err, &cmdErr) && cmdErr.Name == "IndexNotFound":
			case errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceNotFound":
			default:
				slog.Warn("Failed to drop retired index", "collection", name, "index", index, "error", err)
			}
		}
	}
}
