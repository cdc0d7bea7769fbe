// Package tesseract implements ocr.Recognizer on libtesseract via gosseract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"sniprag/internal/ocr"
	"sniprag/internal/util"
)

type Recognizer struct {
	opts          ocr.Options
	clientFactory func() *gosseract.Client
}

// New checks that trained data for every configured language is present.
func New(opts ocr.Options) (*Recognizer, error) {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	dir := opts.TessdataDir
	if dir == "" {
		dir = os.Getenv("TESSDATA_PREFIX")
	}
	if dir != "" {
		for _, lang := range opts.Languages {
			p := filepath.Join(dir, lang+".traineddata")
			if _, err := os.Stat(p); err != nil {
				return nil, fmt.Errorf("%w: trained data for %q: %v", util.ErrOCRUnavailable, lang, err)
			}
		}
	}
	r := &Recognizer{opts: opts, clientFactory: gosseract.NewClient}
	if err := r.probe(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrOCRUnavailable, err)
	}
	return r, nil
}

func (r *Recognizer) Name() string { return "gosseract" }

func (r *Recognizer) newClient() (*gosseract.Client, error) {
	c := r.clientFactory()
	if r.opts.TessdataDir != "" {
		c.TessdataPrefix = r.opts.TessdataDir
	}
	if err := c.SetLanguage(r.opts.Languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return c, nil
}

// probe initialises the engine once so a broken install fails at startup.
func (r *Recognizer) probe() error {
	c, err := r.newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.SetImageFromBytes(blankPNG); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("initialise tesseract: %w", err)
	}
	return nil
}

// Recognize returns word boxes; a word's line key is the index of the text
// line box containing its centre.
func (r *Recognizer) Recognize(ctx context.Context, png []byte, dpi int) ([]ocr.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := r.newClient()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if err := c.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(dpi)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("line boxes: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}
	lineRects := make([]image.Rectangle, len(lines))
	for i, l := range lines {
		lineRects[i] = l.Box
	}
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		conf := b.Confidence / 100
		if conf < 0 {
			conf = 0
		}
		words = append(words, ocr.Word{
			Text:       b.Word,
			Box:        b.Box,
			Confidence: conf,
			Line:       LineKey(lineRects, b.Box),
		})
	}
	return words, nil
}

// LineKey names the first line rect containing the centre of box. Words
// outside every line get a key of their own.
func LineKey(lines []image.Rectangle, box image.Rectangle) string {
	centre := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	for i, l := range lines {
		if centre.In(l) {
			return "l" + strconv.Itoa(i)
		}
	}
	return fmt.Sprintf("w%d,%d", box.Min.X, box.Min.Y)
}
