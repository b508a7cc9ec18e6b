package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/bookpreview/internal/models"
)

var ErrBookNotFound = errors.New("book not found")

// Store is the subset of the catalog the preview and indexer functions use.
type Store interface {
	Get(ctx context.Context, id string) (*models.Book, error)
	FindBySource(ctx context.Context, bucket, path string) (*models.Book, error)
	RecordIndexed(ctx context.Context, id string, r IndexResult) error
	MarkFailed(ctx context.Context, id, details string) error
}

// IndexResult holds the fields derived from a book's source file.
type IndexResult struct {
	PageCount   int
	FileHash    string
	CoverObject string
}

// Repository reads and updates book records in a Firestore collection.
type Repository struct {
	client     *firestore.Client
	collection string
}

func NewRepository(client *firestore.Client, collection string) *Repository {
	return &Repository{client: client, collection: collection}
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Book, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to read book %s: %w", id, err)
	}
	return decode(snap)
}

func (r *Repository) FindBySource(ctx context.Context, bucket, path string) (*models.Book, error) {
	docs, err := r.client.Collection(r.collection).
		Where("sourceBucket", "==", bucket).
		Where("sourcePath", "==", path).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query books by source: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrBookNotFound
	}
	return decode(docs[0])
}

func (r *Repository) RecordIndexed(ctx context.Context, id string, res IndexResult) error {
	updates := []firestore.Update{
		{Path: "indexStatus", Value: models.IndexStatusIndexed},
		{Path: "pageCount", Value: res.PageCount},
		{Path: "fileHash", Value: res.FileHash},
		{Path: "errorDetails", Value: firestore.Delete},
		{Path: "indexedAt", Value: time.Now()},
	}
	if res.CoverObject != "" {
		updates = append(updates, firestore.Update{Path: "coverObject", Value: res.CoverObject})
	}
	if _, err := r.client.Collection(r.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to record index result for book %s: %w", id, err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id, details string) error {
	updates := []firestore.Update{
		{Path: "indexStatus", Value: models.IndexStatusFailed},
		{Path: "errorDetails", Value: details},
	}
	if _, err := r.client.Collection(r.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to mark book %s as failed: %w", id, err)
	}
	return nil
}

func decode(snap *firestore.DocumentSnapshot) (*models.Book, error) {
	var b models.Book
	if err := snap.DataTo(&b); err != nil {
		return nil, fmt.Errorf("failed to decode book %s: %w", snap.Ref.ID, err)
	}
	b.ID = snap.Ref.ID
	return &b, nil
}
