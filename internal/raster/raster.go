// Package raster defines the page rasterization capability shared by the
// snippet renderer and the OCR layout extractor.
package raster

import (
	"context"
	"image"

	"sniprag/internal/models"
)

const DefaultDPI = 150

// Rasterizer renders PDF pages. Implementations must be safe for concurrent
// use on distinct documents.
type Rasterizer interface {
	Pages(ctx context.Context, data []byte) ([]models.Page, error)
	Render(ctx context.Context, data []byte, page int, dpi float64) (image.Image, error)
}

// PageRaster is a rendered page plus the information needed to map page
// coordinates onto its pixels.
type PageRaster struct {
	Image  image.Image
	DPI    float64
	Width  float64
	Height float64
}

// ScaleX converts page points to pixels along the x axis.
func (p *PageRaster) ScaleX() float64 {
	if p.Width <= 0 {
		return p.DPI / 72
	}
	return float64(p.Image.Bounds().Dx()) / p.Width
}

// ScaleY converts page points to pixels along the y axis.
func (p *PageRaster) ScaleY() float64 {
	if p.Height <= 0 {
		return p.DPI / 72
	}
	return float64(p.Image.Bounds().Dy()) / p.Height
}

// Load renders one page and wraps it with its geometry.
func Load(ctx context.Context, r Rasterizer, data []byte, page models.Page, dpi float64) (*PageRaster, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := r.Render(ctx, data, page.Index, dpi)
	if err != nil {
		return nil, err
	}
	return &PageRaster{Image: img, DPI: dpi, Width: page.Width, Height: page.Height}, nil
}
