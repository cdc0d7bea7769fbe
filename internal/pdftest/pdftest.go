// Package pdftest writes small uncompressed PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Page is one page of a generated document. Content is a raw content
// stream; Image adds a 1x1 image XObject named /Im1 to the page resources.
// Rotate and CropBox are written to the page dictionary when set.
type Page struct {
	Content string
	Image   bool
	Rotate  int
	CropBox []float64
}

// Text returns a page showing each line in 12pt Helvetica, starting at
// (72, 720) in PDF space and moving down 20pt per line.
func Text(lines ...string) Page {
	var b strings.Builder
	for i, l := range lines {
		l = strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(l)
		fmt.Fprintf(&b, "BT /F1 12 Tf 72 %d Td (%s) Tj ET ", 720-20*i, l)
	}
	return Page{Content: strings.TrimSpace(b.String())}
}

// Scanned returns a page that only paints an image.
func Scanned() Page {
	return Page{Content: "q 100 0 0 100 72 600 cm /Im1 Do Q", Image: true}
}

// Build writes a PDF with one Helvetica font (WinAnsi, every glyph 500 units
// wide) and one 1x1 image XObject. MediaBox is 612x792 and inherited from
// the page tree root.
func Build(pages ...Page) []byte {
	var objs []string
	add := func(s string) int {
		objs = append(objs, s)
		return len(objs)
	}
	add("<< /Type /Catalog /Pages 2 0 R >>")
	add("")
	widths := strings.TrimSpace(strings.Repeat("500 ", 95))
	font := add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))
	img := add("<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Length 1 >>\nstream\n\xff\nendstream")

	kids := make([]string, 0, len(pages))
	for _, p := range pages {
		content := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content))
		res := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
		if p.Image {
			res += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", img)
		}
		extra := ""
		if p.Rotate != 0 {
			extra += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		if len(p.CropBox) == 4 {
			extra += fmt.Sprintf(" /CropBox [%g %g %g %g]", p.CropBox[0], p.CropBox[1], p.CropBox[2], p.CropBox[3])
		}
		page := add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << %s >> /Contents %d 0 R%s >>", res, content, extra))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}
