package preview

import (
	"context"
	"fmt"
	"image"
	"log/slog"
)

// SourceRef locates a book's source document in object storage.
type SourceRef struct {
	Bucket string
	Path   string
}

func (s SourceRef) String() string {
	return fmt.Sprintf("gs://%s/%s", s.Bucket, s.Path)
}

// IsZero reports whether the reference points nowhere.
func (s SourceRef) IsZero() bool {
	return s.Bucket == "" || s.Path == ""
}

// Fetcher downloads a source document. Implementations should return a
// *FetchError so callers can tell missing objects from permission problems.
type Fetcher interface {
	Fetch(ctx context.Context, src SourceRef) ([]byte, error)
}

// Parser turns raw bytes into a page-addressable Document.
type Parser interface {
	Parse(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened, page-oriented document. Page numbers are 1-indexed.
type Document interface {
	PageCount() int
	// PageSize returns the intrinsic page geometry in points.
	PageSize(page int) (width, height float64, err error)
	// RenderPage rasterizes the page at scale × its intrinsic size.
	RenderPage(page int, scale float64) (image.Image, error)
	Close() error
}

// Pipeline runs fetch → parse → bounded rasterization for one session.
type Pipeline struct {
	Fetcher    Fetcher
	Parser     Parser
	Rasterizer *Rasterizer
}

// Run produces the per-page outcomes for the first pageCap pages of src.
// It returns the document's true page count alongside the results.
func (p *Pipeline) Run(ctx context.Context, src SourceRef, pageCap int) ([]PageResult, int, error) {
	if src.IsZero() {
		return nil, 0, &MissingSourceError{}
	}

	data, err := p.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, 0, err
	}

	doc, err := p.Parser.Parse(ctx, data)
	if err != nil {
		return nil, 0, err
	}
	defer doc.Close()

	total := doc.PageCount()
	if total <= 0 {
		return nil, total, ErrNoPages
	}

	results, err := p.Rasterizer.Rasterize(ctx, doc, pageCap)
	if err != nil {
		return nil, total, err
	}
	slog.Debug("Rasterized preview pages.", "source", src.String(), "totalPages", total, "pageCap", pageCap, "results", len(results))
	return results, total, nil
}
