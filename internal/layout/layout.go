// Package layout turns one PDF page into coordinate-tagged text runs. Two
// strategies exist: native reads the text layer, OCR recognizes the rendered
// page.
package layout

import (
	"context"
	"fmt"

	"sniprag/internal/models"
	"sniprag/internal/snippet"
)

// Source is the document being extracted. Pages is filled in by the engine
// after calling Extractor.Pages.
type Source = snippet.Source

// Extractor is chosen once per engine. ExtractPage must be safe to call
// concurrently for different pages of the same source.
type Extractor interface {
	Strategy() models.Strategy
	Pages(ctx context.Context, src Source) ([]models.Page, error)
	ExtractPage(ctx context.Context, src Source, page models.Page) ([]models.TextRun, error)
}

// recoverInto turns a parser panic into an error on *err.
func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: malformed pdf: %v", what, r)
	}
}

func clampBox(b models.BBox, page models.Page) models.BBox {
	if page.Width <= 0 || page.Height <= 0 {
		return b
	}
	clamp := func(v, hi float64) float64 {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}
	return models.BBox{
		X0: clamp(b.X0, page.Width),
		Y0: clamp(b.Y0, page.Height),
		X1: clamp(b.X1, page.Width),
		Y1: clamp(b.Y1, page.Height),
	}
}
