package snippet

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniprag/internal/models"
	"sniprag/internal/pagecache"
	"sniprag/internal/raster"
	"sniprag/internal/util"
)

type countingRasterizer struct{ renders atomic.Int32 }

func (c *countingRasterizer) Pages(context.Context, []byte) ([]models.Page, error) {
	return []models.Page{{Index: 0, Width: 612, Height: 792}}, nil
}

func (c *countingRasterizer) Render(_ context.Context, _ []byte, _ int, dpi float64) (image.Image, error) {
	c.renders.Add(1)
	s := dpi / 72
	return image.NewGray(image.Rect(0, 0, int(612*s), int(792*s))), nil
}

func testSource() Source {
	return Source{
		DocumentID: "doc",
		Version:    "v1",
		Data:       []byte("%PDF"),
		Pages:      []models.Page{{Index: 0, Width: 612, Height: 792}},
	}
}

func pageRaster(dpi float64) *raster.PageRaster {
	s := dpi / 72
	return &raster.PageRaster{
		Image:  image.NewGray(image.Rect(0, 0, int(612*s), int(792*s))),
		DPI:    dpi,
		Width:  612,
		Height: 792,
	}
}

func TestCropRectPaddingGrowsAndClamps(t *testing.T) {
	pr := pageRaster(72)
	box := models.BBox{X0: 100, Y0: 100, X1: 200, Y1: 120}

	tight := CropRect(pr, box, 0)
	assert.Equal(t, image.Rect(100, 100, 200, 120), tight)

	padded := CropRect(pr, box, 20)
	assert.Equal(t, image.Rect(80, 80, 220, 140), padded)
	assert.True(t, tight.In(padded))

	edge := CropRect(pr, models.BBox{X0: 0, Y0: 0, X1: 10, Y1: 10}, 50)
	assert.Equal(t, image.Rect(0, 0, 60, 60), edge)

	huge := CropRect(pr, box, 10000)
	assert.Equal(t, pr.Image.Bounds(), huge)
}

func TestCropRectScalesWithDPI(t *testing.T) {
	pr := pageRaster(144)
	rect := CropRect(pr, models.BBox{X0: 10, Y0: 10, X1: 20, Y1: 20}, 0)
	assert.Equal(t, image.Rect(20, 20, 40, 40), rect)
}

func TestRenderUsesCache(t *testing.T) {
	rz := &countingRasterizer{}
	r := NewRenderer(pagecache.New(4), rz, 72, 0)
	box := models.BBox{X0: 72, Y0: 72, X1: 144, Y1: 90}

	out, err := r.Render(context.Background(), testSource(), 0, box, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 72, img.Bounds().Dx())
	assert.Equal(t, 18, img.Bounds().Dy())

	_, err = r.Render(context.Background(), testSource(), 0, box, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rz.renders.Load())
}

func TestRenderDownscalesToMaxWidth(t *testing.T) {
	r := NewRenderer(pagecache.New(4), &countingRasterizer{}, 72, 50)
	out, err := r.Render(context.Background(), testSource(), 0, models.BBox{X0: 0, Y0: 0, X1: 200, Y1: 100}, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestRenderErrors(t *testing.T) {
	r := NewRenderer(pagecache.New(4), &countingRasterizer{}, 72, 0)
	box := models.BBox{X0: 1, Y0: 1, X1: 2, Y1: 2}

	_, err := r.Render(context.Background(), testSource(), 0, box, -1)
	require.ErrorIs(t, err, util.ErrInvalidPadding)

	src := testSource()
	src.Data = nil
	_, err = r.Render(context.Background(), src, 0, box, 0)
	require.ErrorIs(t, err, util.ErrImage)

	_, err = r.Render(context.Background(), testSource(), 3, box, 0)
	require.ErrorIs(t, err, util.ErrImage)
}
