package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultScale            = 1.5
	DefaultJPEGQuality      = 80
	DefaultConcurrency      = 3
	DefaultMaxSurfacePixels = 40_000_000
)

// RenderedPage is one rasterized page, JPEG encoded.
type RenderedPage struct {
	Number int
	JPEG   []byte
	Width  int
	Height int
}

// SkippedPage records a page that could not be drawn.
type SkippedPage struct {
	Number int    `json:"number"`
	Reason string `json:"reason"`
}

// PageResult holds exactly one of Rendered or Skipped.
type PageResult struct {
	Rendered *RenderedPage
	Skipped  *SkippedPage
}

func (r PageResult) Number() int {
	if r.Rendered != nil {
		return r.Rendered.Number
	}
	return r.Skipped.Number
}

// Rasterizer renders a bounded prefix of a document's pages.
type Rasterizer struct {
	Scale            float64
	Quality          int
	Concurrency      int
	MaxSurfacePixels int
}

// NewRasterizer returns a Rasterizer with the default policy.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{
		Scale:            DefaultScale,
		Quality:          DefaultJPEGQuality,
		Concurrency:      DefaultConcurrency,
		MaxSurfacePixels: DefaultMaxSurfacePixels,
	}
}

// BoundedCount is the number of pages a preview may ever render.
func BoundedCount(total, pageCap int) int {
	if total < 0 {
		return 0
	}
	return min(total, pageCap)
}

// Rasterize renders pages 1..min(PageCount, pageCap). Pages render
// concurrently, each on its own surface; results are in page order.
// A page that cannot be drawn is reported as skipped, not as an error.
func (r *Rasterizer) Rasterize(ctx context.Context, doc Document, pageCap int) ([]PageResult, error) {
	if pageCap <= 0 {
		return nil, ErrInvalidPageCap
	}
	bounded := BoundedCount(doc.PageCount(), pageCap)
	results := make([]PageResult, bounded)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(r.Concurrency, 1))

	for i := 0; i < bounded; i++ {
		pageNumber := i + 1
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := r.renderPage(doc, pageNumber)
			if err != nil {
				slog.Warn("Skipping preview page.", "page", pageNumber, "error", err)
				results[pageNumber-1] = PageResult{Skipped: &SkippedPage{Number: pageNumber, Reason: err.Error()}}
				return nil
			}
			results[pageNumber-1] = PageResult{Rendered: page}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Rasterizer) renderPage(doc Document, pageNumber int) (*RenderedPage, error) {
	w, h, err := doc.PageSize(pageNumber)
	if err != nil {
		return nil, fmt.Errorf("page geometry: %w", err)
	}
	width := int(math.Round(w * r.Scale))
	height := int(math.Round(h * r.Scale))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("empty page surface %dx%d", width, height)
	}
	if r.MaxSurfacePixels > 0 && width*height > r.MaxSurfacePixels {
		return nil, fmt.Errorf("page surface %dx%d exceeds limit", width, height)
	}

	src, err := doc.RenderPage(pageNumber, r.Scale)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	surface := image.NewRGBA(image.Rect(0, 0, width, height))
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		draw.Draw(surface, surface.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(surface, surface.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, surface, &jpeg.Options{Quality: r.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &RenderedPage{
		Number: pageNumber,
		JPEG:   buf.Bytes(),
		Width:  width,
		Height: height,
	}, nil
}
