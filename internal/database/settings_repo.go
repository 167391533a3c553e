package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SettingsRepository reads the runtime renewal settings document
type SettingsRepository struct {
	collection *mongo.Collection
	defaults   model.RenewalSettings
}

// NewSettingsRepository creates a new settings repository. defaults are
// returned when no settings document exists yet.
func NewSettingsRepository(db *MongoDB, defaults model.RenewalSettings) *SettingsRepository {
	defaults.ID = model.RenewalSettingsID
	return &SettingsRepository{
		collection: db.GetCollection(CollectionSettings),
		defaults:   defaults,
	}
}

// GetRenewalSettings retrieves the renewal settings
func (r *SettingsRepository) GetRenewalSettings(ctx context.Context) (*model.RenewalSettings, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var settings model.RenewalSettings
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": model.RenewalSettingsID}).Decode(&settings)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			defaults := r.defaults
			return &defaults, nil
		}
		return nil, fmt.Errorf("failed to get renewal settings: %w", err)
	}

	if settings.LookaheadMinutes <= 0 {
		settings.LookaheadMinutes = r.defaults.LookaheadMinutes
	}
	if settings.DistributionMode == "" {
		settings.DistributionMode = model.DistributionAuto
	}

	return &settings, nil
}
