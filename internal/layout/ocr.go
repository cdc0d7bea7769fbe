package layout

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"sort"
	"strings"

	"sniprag/internal/models"
	"sniprag/internal/ocr"
	"sniprag/internal/raster"
	"sniprag/internal/snippet"
	"sniprag/internal/util"
)

// OCR renders each page through the shared page cache and recognizes it.
type OCR struct {
	rasterizer raster.Rasterizer
	renderer   *snippet.Renderer
	recognizer ocr.Recognizer
	dpi        float64
}

// NewOCR requires a working recognizer; a nil one is ErrOCRUnavailable.
func NewOCR(rz raster.Rasterizer, renderer *snippet.Renderer, rec ocr.Recognizer, dpi float64) (*OCR, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: no recognizer configured", util.ErrOCRUnavailable)
	}
	if rz == nil || renderer == nil {
		return nil, fmt.Errorf("%w: ocr needs a page rasterizer", util.ErrOCRUnavailable)
	}
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}
	return &OCR{rasterizer: rz, renderer: renderer, recognizer: rec, dpi: dpi}, nil
}

func (o *OCR) Strategy() models.Strategy { return models.StrategyOCR }

func (o *OCR) Pages(ctx context.Context, src Source) ([]models.Page, error) {
	if len(src.Data) == 0 {
		return nil, util.ErrEmptyDocument
	}
	return o.rasterizer.Pages(ctx, src.Data)
}

func (o *OCR) ExtractPage(ctx context.Context, src Source, page models.Page) ([]models.TextRun, error) {
	pr, err := o.renderer.Raster(ctx, src, page.Index)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page.Index, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, pr.Image); err != nil {
		return nil, fmt.Errorf("page %d: encode raster: %w", page.Index, err)
	}
	words, err := o.recognizer.Recognize(ctx, buf.Bytes(), int(math.Round(pr.DPI)))
	if err != nil {
		return nil, fmt.Errorf("page %d: %s: %w", page.Index, o.recognizer.Name(), err)
	}
	return WordsToRuns(words, pr, page), nil
}

// WordsToRuns rescales word pixel boxes to page points and merges the words
// of each recognizer line into one run. Lines keep the recognizer's order.
func WordsToRuns(words []ocr.Word, pr *raster.PageRaster, page models.Page) []models.TextRun {
	sx, sy := pr.ScaleX(), pr.ScaleY()
	origin := pr.Image.Bounds().Min

	type line struct {
		words []ocr.Word
		box   models.BBox
		conf  float64
	}
	lines := map[string]*line{}
	order := make([]string, 0)
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" || w.Box.Empty() {
			continue
		}
		l, ok := lines[w.Line]
		if !ok {
			l = &line{}
			lines[w.Line] = l
			order = append(order, w.Line)
		}
		l.words = append(l.words, w)
		l.conf += w.Confidence
		l.box = l.box.Union(models.BBox{
			X0: float64(w.Box.Min.X-origin.X) / sx,
			Y0: float64(w.Box.Min.Y-origin.Y) / sy,
			X1: float64(w.Box.Max.X-origin.X) / sx,
			Y1: float64(w.Box.Max.Y-origin.Y) / sy,
		})
	}

	runs := make([]models.TextRun, 0, len(order))
	for _, key := range order {
		l := lines[key]
		sort.SliceStable(l.words, func(i, j int) bool { return l.words[i].Box.Min.X < l.words[j].Box.Min.X })
		parts := make([]string, len(l.words))
		for i, w := range l.words {
			parts[i] = strings.TrimSpace(w.Text)
		}
		runs = append(runs, models.TextRun{
			Text:       strings.Join(parts, " "),
			BBox:       clampBox(l.box, page),
			Page:       page.Index,
			Confidence: l.conf / float64(len(l.words)),
		})
	}
	return runs
}
