package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/go-playground/validator/v10"

	"github.com/Lllllllleong/bookpreview/internal/catalog"
	"github.com/Lllllllleong/bookpreview/internal/gcp"
	"github.com/Lllllllleong/bookpreview/internal/models"
	"github.com/Lllllllleong/bookpreview/internal/pdfdoc"
	"github.com/Lllllllleong/bookpreview/internal/preview"
)

// IndexerConfig holds all configuration for the book-indexer service.
type IndexerConfig struct {
	ProjectID       string  `validate:"required"`
	BooksCollection string  `validate:"required"`
	CoversBucket    string  `validate:"required"`
	CoverScale      float64 `validate:"gt=0,lte=4"`
	MaxSourceBytes  int64   `validate:"min=0"`
}

func loadIndexerConfig(v *validator.Validate) (*IndexerConfig, error) {
	cfg := &IndexerConfig{
		ProjectID:       gcp.GetEnv("PROJECT_ID", ""),
		BooksCollection: gcp.GetEnv("BOOKS_COLLECTION", "books"),
		CoversBucket:    gcp.GetEnv("COVERS_BUCKET", ""),
		CoverScale:      gcp.GetEnvFloat("COVER_SCALE", 1.0),
		MaxSourceBytes:  int64(gcp.GetEnvInt("INDEXER_MAX_SOURCE_BYTES", 500<<20)),
	}
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid indexer configuration: %w", err)
	}
	return cfg, nil
}

// CoverSink stores rendered cover thumbnails.
type CoverSink interface {
	SaveCover(ctx context.Context, objectName string, jpeg []byte) error
}

type gcsCoverSink struct {
	bucket *storage.BucketHandle
}

func (s *gcsCoverSink) SaveCover(ctx context.Context, objectName string, jpeg []byte) error {
	return gcp.SaveToGCSAtomically(ctx, s.bucket, objectName, "image/jpeg", jpeg)
}

// IndexerFunction derives page count, content hash and a cover thumbnail for
// book sources uploaded through the admin back office.
type IndexerFunction struct {
	books      catalog.Store
	fetcher    preview.Fetcher
	parser     preview.Parser
	rasterizer *preview.Rasterizer
	covers     CoverSink
}

func NewIndexer(ctx context.Context) (*IndexerFunction, error) {
	config, err := loadIndexerConfig(validator.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	rasterizer := preview.NewRasterizer()
	rasterizer.Scale = config.CoverScale
	rasterizer.Concurrency = 1

	f := NewIndexerWith(
		catalog.NewRepository(firestoreClient, config.BooksCollection),
		gcp.NewStorageFetcher(storageClient, config.MaxSourceBytes),
		pdfdoc.NewFitzParser(),
		rasterizer,
		&gcsCoverSink{bucket: storageClient.Bucket(config.CoversBucket)},
	)
	slog.Info("Book indexer logic initialized.", "coversBucket", config.CoversBucket)
	return f, nil
}

func NewIndexerWith(books catalog.Store, fetcher preview.Fetcher, parser preview.Parser, rasterizer *preview.Rasterizer, covers CoverSink) *IndexerFunction {
	return &IndexerFunction{
		books:      books,
		fetcher:    fetcher,
		parser:     parser,
		rasterizer: rasterizer,
		covers:     covers,
	}
}

func (f *IndexerFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Not a PDF source. Skipping.")
		return nil
	}

	book, err := f.books.FindBySource(ctx, e.Bucket, e.Name)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			logCtx.Warn("No book references this object. Skipping.")
			return nil
		}
		logCtx.Error("Failed to look up book", "error", err)
		return err
	}
	logCtx = logCtx.With("bookId", book.ID)

	data, err := f.fetcher.Fetch(ctx, preview.SourceRef{Bucket: e.Bucket, Path: e.Name})
	if err != nil {
		return f.handleError(ctx, logCtx, book, "failed to download source", err)
	}

	fileHash := pdfdoc.Hash(data)
	logCtx = logCtx.With("fileHash", fileHash)
	if book.FileHash == fileHash && book.IndexStatus == models.IndexStatusIndexed {
		logCtx.Info("Source unchanged since last index. Skipping.")
		return nil
	}

	info, err := pdfdoc.Inspect(data)
	if err != nil {
		return f.handleError(ctx, logCtx, book, "failed to validate PDF", err)
	}

	optimized, err := pdfdoc.Optimize(data)
	if err != nil {
		logCtx.Warn("Optimization failed; rendering cover from original.", "error", err)
		optimized = data
	}

	coverObject, err := f.renderCover(ctx, book, fileHash, optimized)
	if err != nil {
		// A missing cover does not block indexing.
		logCtx.Warn("Failed to produce cover thumbnail", "error", err)
	}

	res := catalog.IndexResult{PageCount: info.PageCount, FileHash: fileHash, CoverObject: coverObject}
	if err := f.books.RecordIndexed(ctx, book.ID, res); err != nil {
		return f.handleError(ctx, logCtx, book, "failed to record index result", err)
	}
	logCtx.Info("Book indexed.", "pageCount", info.PageCount, "coverObject", coverObject)
	return nil
}

// renderCover rasterizes page 1 with the preview rasterizer capped at one page.
func (f *IndexerFunction) renderCover(ctx context.Context, book *models.Book, fileHash string, data []byte) (string, error) {
	doc, err := f.parser.Parse(ctx, data)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	results, err := f.rasterizer.Rasterize(ctx, doc, 1)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", preview.ErrNoPages
	}
	if results[0].Skipped != nil {
		return "", fmt.Errorf("cover page skipped: %s", results[0].Skipped.Reason)
	}

	objectName := fmt.Sprintf("%s/%s.jpg", book.ID, fileHash[:16])
	if err := f.covers.SaveCover(ctx, objectName, results[0].Rendered.JPEG); err != nil {
		return "", err
	}
	return objectName, nil
}

func (f *IndexerFunction) handleError(ctx context.Context, logCtx *slog.Logger, book *models.Book, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.books.MarkFailed(ctx, book.ID, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to mark book as FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
