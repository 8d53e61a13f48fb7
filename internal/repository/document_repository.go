package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const documentsCollection = "esign_documents"

// DocumentRepository handles e-sign document data operations in a tenant database
type DocumentRepository struct {
	db *mongo.Database
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) collection() *mongo.Collection {
	return r.db.Collection(documentsCollection)
}

// EnsureIndexes creates the indexes backing the job queries
func (r *DocumentRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "pdf_url", Value: 1},
			},
			Options: options.Index().SetName("status_pdf_url_idx"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			},
			Options: options.Index().SetName("status_expires_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "is_archived", Value: 1},
				{Key: "completed_at", Value: 1},
			},
			Options: options.Index().SetName("retention_idx"),
		},
	}

	_, err := r.collection().Indexes().CreateMany(ctx, indexes)
	return err
}

func awaitingPDFFilter() bson.M {
	return bson.M{
		"status":  domain.DocumentStatusSigned,
		"pdf_url": bson.M{"$exists": false},
	}
}

func reminderCandidatesFilter(now time.Time) bson.M {
	return bson.M{
		"status":     bson.M{"$in": domain.InFlightStatuses},
		"expires_at": bson.M{"$gt": now},
	}
}

func retentionCandidatesFilter(cutoff time.Time) bson.M {
	return bson.M{
		"status":       domain.DocumentStatusCompleted,
		"completed_at": bson.M{"$lt": cutoff},
		"is_archived":  bson.M{"$ne": true},
	}
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{
		"status":     bson.M{"$in": domain.InFlightStatuses},
		"expires_at": bson.M{"$lte": now},
	}
}

// reminderGuardFilter matches the document only while its ledger lacks the interval
func reminderGuardFilter(id primitive.ObjectID, hoursBeforeExpiry float64) bson.M {
	return bson.M{
		"_id":                                id,
		"reminders_sent.hours_before_expiry": bson.M{"$ne": hoursBeforeExpiry},
	}
}

func archiveFilter(id primitive.ObjectID) bson.M {
	return bson.M{
		"_id":         id,
		"is_archived": bson.M{"$ne": true},
	}
}

func (r *DocumentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Document, error) {
	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var documents []*domain.Document
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, err
	}

	return documents, nil
}

// FindAwaitingPDF returns up to limit signed documents that have no rendered PDF yet, oldest first
func (r *DocumentRepository) FindAwaitingPDF(ctx context.Context, limit int) ([]*domain.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, awaitingPDFFilter(), opts)
}

// FindByID retrieves a document by ID
func (r *DocumentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Document, error) {
	var document domain.Document
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("document "+id.Hex()+" not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// SetPDFURL records the location of the rendered PDF
func (r *DocumentRepository) SetPDFURL(ctx context.Context, id primitive.ObjectID, url string) error {
	update := bson.M{
		"$set": bson.M{
			"pdf_url":    url,
			"updated_at": time.Now(),
		},
	}

	_, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// FindReminderCandidates returns in-flight documents that have not expired yet
func (r *DocumentRepository) FindReminderCandidates(ctx context.Context, now time.Time) ([]*domain.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}})
	return r.find(ctx, reminderCandidatesFilter(now), opts)
}

// AppendReminder pushes entry onto the reminders_sent ledger unless an entry
// with the same hours_before_expiry is already present. It reports whether
// the ledger changed.
func (r *DocumentRepository) AppendReminder(ctx context.Context, id primitive.ObjectID, entry domain.ReminderEntry) (bool, error) {
	update := bson.M{
		"$push": bson.M{"reminders_sent": entry},
		"$set":  bson.M{"updated_at": entry.SentAt},
	}

	result, err := r.collection().UpdateOne(ctx, reminderGuardFilter(id, entry.HoursBeforeExpiry), update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// FindRetentionCandidates returns completed, unarchived documents completed before cutoff
func (r *DocumentRepository) FindRetentionCandidates(ctx context.Context, cutoff time.Time) ([]*domain.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}})
	return r.find(ctx, retentionCandidatesFilter(cutoff), opts)
}

// Archive flags the document as archived and clears its PDF reference.
// Already archived documents are left untouched.
func (r *DocumentRepository) Archive(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	update := bson.M{
		"$set": bson.M{
			"is_archived": true,
			"archived_at": at,
			"pdf_url":     nil,
			"updated_at":  at,
		},
	}

	result, err := r.collection().UpdateOne(ctx, archiveFilter(id), update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// FindExpired returns in-flight documents whose expiry has passed
func (r *DocumentRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, expiredFilter(now), opts)
}

// MarkExpired moves an in-flight document to expired
func (r *DocumentRepository) MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": domain.InFlightStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     domain.DocumentStatusExpired,
			"updated_at": at,
		},
	}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}
