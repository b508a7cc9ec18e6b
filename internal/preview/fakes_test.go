package preview

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
)

type fakeFetcher struct {
	data  []byte
	err   error
	block chan struct{}
	calls int
	mu    sync.Mutex
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ SourceRef) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeParser struct {
	doc *fakeDoc
	err error
}

func (p *fakeParser) Parse(_ context.Context, _ []byte) (Document, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.doc, nil
}

// fakeDoc has pages whose width is 100+10*n points, so a rendered width
// identifies the source page.
type fakeDoc struct {
	pages      int
	zeroSized  map[int]bool
	failRender map[int]bool
	halfSize   bool

	mu       sync.Mutex
	rendered []int
	closed   bool
}

func pageWidth(n int) float64 { return float64(100 + 10*n) }

const pageHeight = 140.0

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) PageSize(n int) (float64, float64, error) {
	if n < 1 || n > d.pages {
		return 0, 0, ErrPageOutOfRange
	}
	if d.zeroSized[n] {
		return 0, 0, nil
	}
	return pageWidth(n), pageHeight, nil
}

func (d *fakeDoc) RenderPage(n int, scale float64) (image.Image, error) {
	d.mu.Lock()
	d.rendered = append(d.rendered, n)
	d.mu.Unlock()
	if d.failRender[n] {
		return nil, errors.New("content stream damaged")
	}
	w := int(math.Round(pageWidth(n) * scale))
	h := int(math.Round(pageHeight * scale))
	if d.halfSize {
		w, h = w/2, h/2
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (d *fakeDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDoc) renderedPages() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.rendered...)
}

func newPipeline(doc *fakeDoc) *Pipeline {
	return &Pipeline{
		Fetcher:    &fakeFetcher{data: []byte("%PDF-1.7")},
		Parser:     &fakeParser{doc: doc},
		Rasterizer: NewRasterizer(),
	}
}

var testSource = SourceRef{Bucket: "books", Path: "b1/source.pdf"}

// gatedFetcher blocks its first call until gate is closed or the context is
// cancelled; later calls return immediately.
type gatedFetcher struct {
	gate chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ SourceRef) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte("%PDF"), nil
}

func (f *gatedFetcher) waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
