package models

import "time"

// Book statuses. Only published books are visible to non-admin viewers.
const (
	BookStatusDraft     = "draft"
	BookStatusPublished = "published"
)

// Index statuses recorded by the book-indexer function.
const (
	IndexStatusPending = "PENDING"
	IndexStatusIndexed = "INDEXED"
	IndexStatusFailed  = "FAILED"
)

// Book is the catalog record for a book in Firestore. The storefront owns most
// of it; the preview service reads the source location and the indexer fills
// in the derived fields.
type Book struct {
	ID             string    `firestore:"-"`
	Title          string    `firestore:"title,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	SourceBucket   string    `firestore:"sourceBucket,omitempty"`
	SourcePath     string    `firestore:"sourcePath,omitempty"`
	PreviewPageCap int       `firestore:"previewPageCap,omitempty"`
	PageCount      int       `firestore:"pageCount,omitempty"`
	FileHash       string    `firestore:"fileHash,omitempty"`
	CoverObject    string    `firestore:"coverObject,omitempty"`
	IndexStatus    string    `firestore:"indexStatus,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	IndexedAt      time.Time `firestore:"indexedAt,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
}

// IsPublished reports whether the book is visible on the storefront.
func (b *Book) IsPublished() bool {
	return b.Status == BookStatusPublished
}
