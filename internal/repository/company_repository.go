package repository

import (
	"context"
	"errors"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const companiesCollection = "companies"

// CompanyRepository reads tenants from the master database
type CompanyRepository struct {
	client *mongodb.MongoClient
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(client *mongodb.MongoClient) *CompanyRepository {
	return &CompanyRepository{client: client}
}

// FindActive returns every active company ordered by creation
func (r *CompanyRepository) FindActive(ctx context.Context) ([]*domain.Company, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.client.Collection(companiesCollection).Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var companies []*domain.Company
	if err := cursor.All(ctx, &companies); err != nil {
		return nil, err
	}

	return companies, nil
}

// FindByID returns a company by its hex id
func (r *CompanyRepository) FindByID(ctx context.Context, id string) (*domain.Company, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NewConfigurationError(apperrors.CodeCompanyNotFound, "invalid company id "+id, err)
	}

	var company domain.Company
	err = r.client.Collection(companiesCollection).FindOne(ctx, bson.M{"_id": objectID}).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewConfigurationError(apperrors.CodeCompanyNotFound, "company "+id+" not found", err)
	}
	if err != nil {
		return nil, err
	}

	return &company, nil
}
