package pdfdoc

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/Lllllllleong/bookpreview/internal/preview"
)

// pointsPerInch is MuPDF's base resolution; scale 1.0 renders at 72 DPI.
const pointsPerInch = 72.0

// FitzParser opens documents with MuPDF. It accepts anything MuPDF reads,
// which covers PDF and EPUB book sources.
type FitzParser struct{}

func NewFitzParser() *FitzParser {
	return &FitzParser{}
}

func (p *FitzParser) Parse(ctx context.Context, data []byte) (preview.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &preview.ParseError{Err: fmt.Errorf("empty document")}
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &preview.ParseError{Err: err}
	}
	return &fitzDocument{doc: doc}, nil
}

// fitzDocument adapts a go-fitz document to 1-indexed pages. go-fitz
// serializes calls on a document internally, so concurrent use is safe.
type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > d.doc.NumPage() {
		return 0, 0, preview.ErrPageOutOfRange
	}
	r, err := d.doc.Bound(page - 1)
	if err != nil {
		return 0, 0, err
	}
	return float64(r.Dx()), float64(r.Dy()), nil
}

func (d *fitzDocument) RenderPage(page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.doc.NumPage() {
		return nil, preview.ErrPageOutOfRange
	}
	img, err := d.doc.ImageDPI(page-1, pointsPerInch*scale)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
