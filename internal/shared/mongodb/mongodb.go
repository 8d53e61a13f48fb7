package mongodb

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient wraps the MongoDB client. The configured database is the master
// database; tenant databases are reached through TenantDatabase.
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

// validateMongoURI performs basic validation on MongoDB URI to prevent injection attacks
func validateMongoURI(uri string) error {
	if uri == "" {
		return errors.New("mongodb URI cannot be empty")
	}

	parsedURI, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid mongodb URI format: %w", err)
	}

	scheme := parsedURI.Scheme
	if scheme != "mongodb" && scheme != "mongodb+srv" {
		return fmt.Errorf("invalid mongodb URI scheme: %s (must be mongodb or mongodb+srv)", scheme)
	}

	if parsedURI.Host == "" {
		return errors.New("mongodb URI must contain a host")
	}

	return nil
}

// ValidateDatabaseName rejects names MongoDB would refuse or that could escape
// the tenant namespace
func ValidateDatabaseName(name string) error {
	if name == "" {
		return errors.New("database name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("database name %q exceeds 63 characters", name)
	}
	if strings.ContainsAny(name, "/\\. \"$*<>:|?") {
		return fmt.Errorf("database name %q contains invalid characters", name)
	}
	return nil
}

// NewMongoClient creates a new MongoDB client with connection pooling sized for
// a process that fans out across many tenant databases
func NewMongoClient(uri, database string) (*MongoClient, error) {
	if err := validateMongoURI(uri); err != nil {
		return nil, fmt.Errorf("mongodb URI validation failed: %w", err)
	}

	if err := ValidateDatabaseName(database); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(60 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	if strings.Contains(uri, "mongodb+srv://") || strings.Contains(uri, "tls=true") || strings.Contains(uri, "ssl=true") {
		clientOptions.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoClient{
		client:   client,
		database: client.Database(database),
	}, nil
}

// Collection returns a collection handle in the master database
func (c *MongoClient) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Database returns the master database handle
func (c *MongoClient) Database() *mongo.Database {
	return c.database
}

// TenantDatabase returns the handle of a tenant database after validating its name
func (c *MongoClient) TenantDatabase(name string) (*mongo.Database, error) {
	if err := ValidateDatabaseName(name); err != nil {
		return nil, err
	}
	return c.client.Database(name), nil
}

// Ping verifies the server is reachable
func (c *MongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the MongoDB connection
func (c *MongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates indexes for a collection of the given database
func CreateIndexes(ctx context.Context, db *mongo.Database, collectionName string, indexes []mongo.IndexModel) error {
	_, err := db.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}
