package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/Lllllllleong/bookpreview/internal/catalog"
	"github.com/Lllllllleong/bookpreview/internal/identity"
	"github.com/Lllllllleong/bookpreview/internal/models"
	"github.com/Lllllllleong/bookpreview/internal/preview"
)

type memoryBooks struct {
	mu      sync.Mutex
	books   map[string]*models.Book
	indexed map[string]catalog.IndexResult
	failed  map[string]string
}

func newMemoryBooks(books ...*models.Book) *memoryBooks {
	m := &memoryBooks{
		books:   make(map[string]*models.Book),
		indexed: make(map[string]catalog.IndexResult),
		failed:  make(map[string]string),
	}
	for _, b := range books {
		m.books[b.ID] = b
	}
	return m
}

func (m *memoryBooks) Get(_ context.Context, id string) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, catalog.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBooks) FindBySource(_ context.Context, bucket, path string) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.SourceBucket == bucket && b.SourcePath == path {
			cp := *b
			return &cp, nil
		}
	}
	return nil, catalog.ErrBookNotFound
}

func (m *memoryBooks) RecordIndexed(_ context.Context, id string, r catalog.IndexResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed[id] = r
	return nil
}

func (m *memoryBooks) MarkFailed(_ context.Context, id, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = details
	return nil
}

type tokenViewers map[string]identity.Viewer

func (t tokenViewers) Resolve(_ context.Context, token string) (identity.Viewer, error) {
	if token == "" {
		return identity.Anonymous, nil
	}
	v, ok := t[token]
	if !ok {
		return identity.Anonymous, identity.ErrInvalidToken
	}
	return v, nil
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, src preview.SourceRef) ([]byte, error) {
	data, ok := m[src.Path]
	if !ok {
		return nil, &preview.FetchError{Source: src, Kind: preview.FetchNotFound, Err: fmt.Errorf("no object")}
	}
	return data, nil
}

// pageParser treats the payload "pages:N" as an N-page US-letter document.
type pageParser struct{}

func (pageParser) Parse(_ context.Context, data []byte) (preview.Document, error) {
	var n int
	if _, err := fmt.Sscanf(string(data), "pages:%d", &n); err != nil {
		return nil, &preview.ParseError{Err: err}
	}
	return letterDoc(n), nil
}

type letterDoc int

func (d letterDoc) PageCount() int { return int(d) }

func (d letterDoc) PageSize(int) (float64, float64, error) { return 612, 792, nil }

func (d letterDoc) RenderPage(_ int, scale float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, int(math.Round(612*scale)), int(math.Round(792*scale)))), nil
}

func (d letterDoc) Close() error { return nil }

type memoryCovers struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (c *memoryCovers) SaveCover(_ context.Context, name string, jpeg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects == nil {
		c.objects = make(map[string][]byte)
	}
	c.objects[name] = jpeg
	return nil
}

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
