package raster

import (
	"github.com/gen2brain/go-fitz"
)

// FitzRenderer renders documents with MuPDF.
type FitzRenderer struct{}

// NewFitzRenderer returns a MuPDF-backed Renderer.
func NewFitzRenderer() FitzRenderer {
	return FitzRenderer{}
}

// Open implements Renderer.
func (FitzRenderer) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d fitzDocument) RenderPNG(page int, dpi float64) ([]byte, error) {
	return d.doc.ImagePNG(page, dpi)
}

func (d fitzDocument) Close() error { return d.doc.Close() }
