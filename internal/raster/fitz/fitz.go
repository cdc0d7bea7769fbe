// Package fitz renders PDF pages with MuPDF through go-fitz.
package fitz

import (
	"context"
	"fmt"
	"image"

	gofitz "github.com/gen2brain/go-fitz"

	"sniprag/internal/models"
)

type Rasterizer struct{}

func New() *Rasterizer { return &Rasterizer{} }

func (r *Rasterizer) Pages(ctx context.Context, data []byte) ([]models.Page, error) {
	_ = ctx
	doc, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for raster: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]models.Page, 0, n)
	for i := 0; i < n; i++ {
		b, err := doc.Bound(i)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", i, err)
		}
		pages = append(pages, models.Page{Index: i, Width: float64(b.Dx()), Height: float64(b.Dy())})
	}
	return pages, nil
}

func (r *Rasterizer) Render(ctx context.Context, data []byte, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for raster: %w", err)
	}
	defer doc.Close()
	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (%d pages)", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}
