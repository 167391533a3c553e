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
)

// AccountRepository handles reads and renewal updates on the systems collection.
// Accounts are provisioned elsewhere; this repository never creates or deletes them.
type AccountRepository struct {
	collection *mongo.Collection
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *MongoDB) *AccountRepository {
	return &AccountRepository{
		collection: db.GetCollection(CollectionAccounts),
	}
}

// ListAll retrieves every account
func (r *AccountRepository) ListAll(ctx context.Context) ([]model.Account, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.collection.Find(ctxTimeout, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var accounts []model.Account
	if err := cursor.All(ctxTimeout, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	return accounts, nil
}

// GetBySystemID retrieves an account by its external-system identifier
func (r *AccountRepository) GetBySystemID(ctx context.Context, systemID string) (*model.Account, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var account model.Account
	err := r.collection.FindOne(ctxTimeout, bson.M{"system_id": systemID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// MarkRenewed records a successful renewal. The expiration is only
// overwritten when the executor reported a new one.
func (r *AccountRepository) MarkRenewed(ctx context.Context, id primitive.ObjectID, newExpiration *time.Time, renewedAt time.Time) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"last_renewed_at": renewedAt,
		"updated_at":      renewedAt,
	}
	if newExpiration != nil {
		set["expires_at"] = *newExpiration
	}

	result, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to mark account renewed: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
