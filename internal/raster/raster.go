// Package raster turns an uploaded statement into page images.
package raster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for document inputs.
var (
	ErrEmptyDocument = errors.New("raster: document is empty")
	ErrUnreadable    = errors.New("raster: document could not be opened")
	ErrNoPages       = errors.New("raster: document has no pages")
)

// DefaultDPI gives a 300/72 (about 4.17x) scale over the PDF baseline.
const DefaultDPI = 300.0

// Kind is the declared media kind of an upload.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindPNG  Kind = "png"
	KindJPEG Kind = "jpeg"
)

// ParseKind maps a client fileType onto a Kind. Anything that is not a known
// image type is handled as a document.
func ParseKind(fileType string) Kind {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "png", "image/png":
		return KindPNG
	case "jpg", "jpeg", "image/jpg", "image/jpeg":
		return KindJPEG
	default:
		return KindPDF
	}
}

// IsImage reports whether k is passed through without rendering.
func (k Kind) IsImage() bool {
	return k == KindPNG || k == KindJPEG
}

// MIMEType of the bytes sent to the model for this kind.
func (k Kind) MIMEType() string {
	switch k {
	case KindJPEG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// PageImage is one rendered page, 1-based.
type PageImage struct {
	Index    int
	Total    int
	Data     []byte
	MIMEType string
}

// Document is an opened multi-page file.
type Document interface {
	NumPage() int
	// RenderPNG renders the zero-based page at the given resolution.
	RenderPNG(page int, dpi float64) ([]byte, error)
	Close() error
}

// Renderer opens document bytes.
type Renderer interface {
	Open(data []byte) (Document, error)
}

// Rasterizer converts uploads into ordered page images.
type Rasterizer struct {
	renderer Renderer
	dpi      float64
	maxPages int
}

// NewRasterizer creates a rasterizer. dpi <= 0 selects DefaultDPI and
// maxPages <= 0 renders every page.
func NewRasterizer(renderer Renderer, dpi float64, maxPages int) *Rasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Rasterizer{renderer: renderer, dpi: dpi, maxPages: maxPages}
}

// Rasterize returns the pages of data in physical order. Image kinds yield a
// single page holding the original bytes.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte, kind Kind) ([]PageImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if kind.IsImage() {
		return []PageImage{{Index: 1, Total: 1, Data: data, MIMEType: kind.MIMEType()}}, nil
	}

	doc, err := r.renderer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total <= 0 {
		return nil, ErrNoPages
	}
	if r.maxPages > 0 && total > r.maxPages {
		total = r.maxPages
	}

	pages := make([]PageImage, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		png, err := doc.RenderPNG(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("Rasterize: render page %d: %w", i+1, err)
		}
		pages = append(pages, PageImage{
			Index:    i + 1,
			Total:    total,
			Data:     png,
			MIMEType: "image/png",
		})
	}
	return pages, nil
}
