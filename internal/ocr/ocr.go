// Package ocr recognizes words and their pixel boxes in a rendered page image.
package ocr

import (
	"context"
	"image"
)

// Word is one recognized token. Box is in pixels of the submitted image,
// top-left origin. Words sharing a Line key were placed on the same text line
// by the recognizer.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
	Line       string
}

// Recognizer runs OCR over a PNG-encoded image.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, png []byte, dpi int) ([]Word, error)
}

type Options struct {
	// Path of the tesseract executable; empty means look it up on PATH.
	Path        string
	Languages   []string
	TessdataDir string
}

func (o Options) languages() []string {
	if len(o.Languages) == 0 {
		return []string{"eng"}
	}
	return o.Languages
}
