package repository

import (
	"context"
	"errors"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const providerConfigsCollection = "provider_configs"

// ProviderConfigRepository reads a tenant's provider integrations
type ProviderConfigRepository struct {
	db *mongo.Database
}

// NewProviderConfigRepository creates a new provider config repository
func NewProviderConfigRepository(db *mongo.Database) *ProviderConfigRepository {
	return &ProviderConfigRepository{db: db}
}

// FindActive returns the most recently updated active config of the given type
func (r *ProviderConfigRepository) FindActive(ctx context.Context, providerType domain.ProviderType) (*domain.ProviderConfig, error) {
	filter := bson.M{
		"provider_type": providerType,
		"is_active":     true,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	var config domain.ProviderConfig
	err := r.db.Collection(providerConfigsCollection).FindOne(ctx, filter, opts).Decode(&config)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewConfigurationError(
			apperrors.CodeProviderNotConfigured,
			"no active "+string(providerType)+" provider configured",
			err,
		)
	}
	if err != nil {
		return nil, err
	}

	return &config, nil
}
