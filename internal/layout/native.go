package layout

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"sniprag/internal/models"
	"sniprag/internal/util"
)

const (
	ascent  = 0.8
	descent = 0.2

	// US Letter, used when a page has no readable MediaBox.
	fallbackWidth  = 612
	fallbackHeight = 792
)

// Native extracts glyph positions from the PDF text layer.
type Native struct{}

func NewNative() *Native { return &Native{} }

func (n *Native) Strategy() models.Strategy { return models.StrategyNative }

func openReader(data []byte) (r *pdf.Reader, err error) {
	if len(data) == 0 {
		return nil, util.ErrEmptyDocument
	}
	defer recoverInto(&err, "open pdf")
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

func (n *Native) Pages(ctx context.Context, src Source) (pages []models.Page, err error) {
	_ = ctx
	r, err := openReader(src.Data)
	if err != nil {
		return nil, err
	}
	defer recoverInto(&err, "read pages")
	count := r.NumPage()
	pages = make([]models.Page, 0, count)
	for i := 1; i <= count; i++ {
		w, h := geometryOf(r.Page(i)).size()
		pages = append(pages, models.Page{Index: i - 1, Width: w, Height: h})
	}
	return pages, nil
}

func (n *Native) ExtractPage(ctx context.Context, src Source, page models.Page) (runs []models.TextRun, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := openReader(src.Data)
	if err != nil {
		return nil, err
	}
	defer recoverInto(&err, fmt.Sprintf("page %d", page.Index))

	if page.Index < 0 || page.Index >= r.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page.Index)
	}
	p := r.Page(page.Index + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", page.Index)
	}
	geo := geometryOf(p)
	cb := geo.box
	// Runs are grouped on the unrotated page and turned into displayed page
	// space afterwards, matching what the rasterizer draws.
	upright := models.Page{Index: page.Index, Width: cb.Width(), Height: cb.Height()}

	glyphs := make([]glyph, 0)
	for _, t := range p.Content().Text {
		if t.S == "" {
			continue
		}
		size := math.Abs(t.FontSize)
		if size == 0 {
			size = 1
		}
		w := t.W
		if w <= 0 {
			w = 0.5 * size * float64(utf8.RuneCountInString(t.S))
		}
		baseline := cb.Y1 - t.Y
		x := t.X - cb.X0
		glyphs = append(glyphs, glyph{
			text:     t.S,
			size:     size,
			baseline: baseline,
			box: models.BBox{
				X0: x,
				Y0: baseline - ascent*size,
				X1: x + w,
				Y1: baseline + descent*size,
			},
		})
	}

	runs = groupGlyphs(glyphs, upright)
	for i := range runs {
		runs[i].BBox = geo.toDisplay(runs[i].BBox)
	}
	if len(runs) == 0 && hasImages(p.Resources(), 0) {
		return nil, fmt.Errorf("%w: page %d has only images", util.ErrUnsupportedPDF, page.Index)
	}
	return runs, nil
}

// pageGeometry is the visible area of a page in PDF user space and its
// clockwise display rotation.
type pageGeometry struct {
	box    models.BBox
	rotate int
}

func geometryOf(p pdf.Page) pageGeometry {
	media, ok := inheritedBox(p, "MediaBox")
	if !ok {
		media = models.BBox{X1: fallbackWidth, Y1: fallbackHeight}
	}
	box := media
	if crop, ok := inheritedBox(p, "CropBox"); ok {
		if c := intersect(crop, media); !c.IsEmpty() {
			box = c
		}
	}
	rot := 0
	if v := inherited(p, "Rotate"); v.Kind() == pdf.Integer || v.Kind() == pdf.Real {
		rot = int(math.Round(v.Float64()/90)) * 90
		rot = ((rot % 360) + 360) % 360
	}
	return pageGeometry{box: box, rotate: rot}
}

// size is the displayed width and height in points.
func (g pageGeometry) size() (float64, float64) {
	if g.rotate == 90 || g.rotate == 270 {
		return g.box.Height(), g.box.Width()
	}
	return g.box.Width(), g.box.Height()
}

// toDisplay maps a top-left box on the unrotated visible area onto the
// rotated page as it is rendered.
func (g pageGeometry) toDisplay(b models.BBox) models.BBox {
	w, h := g.box.Width(), g.box.Height()
	switch g.rotate {
	case 90:
		return models.BBox{X0: h - b.Y1, Y0: b.X0, X1: h - b.Y0, Y1: b.X1}
	case 180:
		return models.BBox{X0: w - b.X1, Y0: h - b.Y1, X1: w - b.X0, Y1: h - b.Y0}
	case 270:
		return models.BBox{X0: b.Y0, Y0: w - b.X1, X1: b.Y1, Y1: w - b.X0}
	}
	return b
}

// inherited looks key up on the page and then up the page tree.
func inherited(p pdf.Page, key string) pdf.Value {
	v := p.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func inheritedBox(p pdf.Page, key string) (models.BBox, bool) {
	a := inherited(p, key)
	if a.Kind() != pdf.Array || a.Len() != 4 {
		return models.BBox{}, false
	}
	b := models.BBox{
		X0: a.Index(0).Float64(),
		Y0: a.Index(1).Float64(),
		X1: a.Index(2).Float64(),
		Y1: a.Index(3).Float64(),
	}
	if b.X0 > b.X1 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y0 > b.Y1 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b, !b.IsEmpty()
}

func intersect(a, b models.BBox) models.BBox {
	return models.BBox{
		X0: math.Max(a.X0, b.X0),
		Y0: math.Max(a.Y0, b.Y0),
		X1: math.Min(a.X1, b.X1),
		Y1: math.Min(a.Y1, b.Y1),
	}
}

// hasImages reports whether res, or a form XObject nested in it, draws an
// image XObject.
func hasImages(res pdf.Value, depth int) bool {
	if depth > 4 || res.IsNull() {
		return false
	}
	xobjects := res.Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return false
	}
	for _, name := range xobjects.Keys() {
		xo := xobjects.Key(name)
		switch xo.Key("Subtype").Name() {
		case "Image":
			return true
		case "Form":
			if hasImages(xo.Key("Resources"), depth+1) {
				return true
			}
		}
	}
	return false
}

type glyph struct {
	text     string
	size     float64
	baseline float64
	box      models.BBox
}

// groupGlyphs merges glyphs in content order into line runs. A glyph joins
// the current run when it sits on the same baseline and starts within a small
// gap after the previous glyph; a wider gap inserts a single space.
func groupGlyphs(glyphs []glyph, page models.Page) []models.TextRun {
	runs := make([]models.TextRun, 0)
	var (
		cur  strings.Builder
		box  models.BBox
		last *glyph
	)
	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" {
			runs = append(runs, models.TextRun{
				Text:       text,
				BBox:       clampBox(box, page),
				Page:       page.Index,
				Confidence: 1,
			})
		}
		cur.Reset()
		box = models.BBox{}
		last = nil
	}

	for i := range glyphs {
		g := &glyphs[i]
		blank := strings.TrimSpace(g.text) == ""
		if last != nil {
			tol := math.Max(1, 0.3*math.Max(g.size, last.size))
			gap := g.box.X0 - last.box.X1
			switch {
			case math.Abs(g.baseline-last.baseline) > tol:
				flush()
			case gap > 3*g.size || gap < -g.size:
				flush()
			case gap > 0.25*g.size && !blank && !strings.HasSuffix(cur.String(), " "):
				cur.WriteByte(' ')
			}
		}
		if blank {
			if last != nil && !strings.HasSuffix(cur.String(), " ") {
				cur.WriteByte(' ')
				last = g
			}
			continue
		}
		cur.WriteString(g.text)
		box = box.Union(g.box)
		last = g
	}
	flush()
	return runs
}
