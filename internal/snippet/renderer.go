// Package snippet crops the page region behind a chunk out of the cached page
// raster and encodes it as PNG.
package snippet

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"sniprag/internal/models"
	"sniprag/internal/pagecache"
	"sniprag/internal/raster"
	"sniprag/internal/util"
)

const DefaultPadding = 20

// Source identifies the document bytes a page raster is rendered from.
type Source struct {
	DocumentID string
	// Version separates cached rasters of different bytes for one document.
	Version string
	Data    []byte
	Pages   []models.Page
}

type Renderer struct {
	cache      *pagecache.Cache
	rasterizer raster.Rasterizer
	dpi        float64
	maxWidth   int
}

// NewRenderer builds a renderer. maxWidth <= 0 disables downscaling.
func NewRenderer(cache *pagecache.Cache, r raster.Rasterizer, dpi float64, maxWidth int) *Renderer {
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}
	return &Renderer{cache: cache, rasterizer: r, dpi: dpi, maxWidth: maxWidth}
}

// Render returns PNG bytes of box on page, grown by padding pixels per side.
func (r *Renderer) Render(ctx context.Context, src Source, page int, box models.BBox, padding int) ([]byte, error) {
	if padding < 0 {
		return nil, fmt.Errorf("%w: %d", util.ErrInvalidPadding, padding)
	}
	pr, err := r.Raster(ctx, src, page)
	if err != nil {
		return nil, err
	}
	rect := CropRect(pr, box, padding)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: empty crop for page %d", util.ErrImage, page)
	}
	out := crop(pr.Image, rect, r.maxWidth)
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", util.ErrImage, err)
	}
	return buf.Bytes(), nil
}

// Raster fetches the page raster through the cache, rendering on a miss.
func (r *Renderer) Raster(ctx context.Context, src Source, page int) (*raster.PageRaster, error) {
	if r.rasterizer == nil {
		return nil, fmt.Errorf("%w: no rasterizer configured", util.ErrImage)
	}
	if len(src.Data) == 0 {
		return nil, fmt.Errorf("%w: source of document %q is not loaded", util.ErrImage, src.DocumentID)
	}
	if page < 0 || page >= len(src.Pages) {
		return nil, fmt.Errorf("%w: page %d out of range", util.ErrImage, page)
	}
	pg := src.Pages[page]
	pr, err := r.cache.Get(ctx, pagecache.Key{DocumentID: src.DocumentID, Version: src.Version, Page: page}, func(ctx context.Context) (*raster.PageRaster, error) {
		return raster.Load(ctx, r.rasterizer, src.Data, pg, r.dpi)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rasterize page %d: %v", util.ErrImage, page, err)
	}
	return pr, nil
}

// CropRect maps box from page coordinates onto raster pixels, expands it by
// padding pixels on every side and clamps it to the raster bounds.
func CropRect(pr *raster.PageRaster, box models.BBox, padding int) image.Rectangle {
	sx, sy := pr.ScaleX(), pr.ScaleY()
	b := pr.Image.Bounds()
	rect := image.Rect(
		b.Min.X+int(math.Floor(box.X0*sx))-padding,
		b.Min.Y+int(math.Floor(box.Y0*sy))-padding,
		b.Min.X+int(math.Ceil(box.X1*sx))+padding,
		b.Min.Y+int(math.Ceil(box.Y1*sy))+padding,
	)
	return rect.Intersect(b)
}

func crop(src image.Image, rect image.Rectangle, maxWidth int) image.Image {
	w, h := rect.Dx(), rect.Dy()
	if maxWidth > 0 && w > maxWidth {
		nh := int(math.Max(1, math.Round(float64(h)*float64(maxWidth)/float64(w))))
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, rect, draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}
