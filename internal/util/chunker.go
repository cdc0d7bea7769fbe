package util

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"sniprag/internal/models"
)

const DefaultChunkMaxChars = 500

// ChunkID builds the stable identifier for the ordinal-th chunk of a page.
// Zero padding keeps lexical order equal to (page, ordinal) order.
func ChunkID(documentID string, page, ordinal int) string {
	return fmt.Sprintf("%s:%04d:%04d", documentID, page, ordinal)
}

// ChunkRuns greedily merges consecutive runs of one page into chunks whose
// text stays within maxChars runes. A run longer than maxChars on its own
// still becomes a chunk. Runs from other pages are ignored.
func ChunkRuns(documentID string, page int, strategy models.Strategy, runs []models.TextRun, maxChars int) []models.Chunk {
	if maxChars <= 0 {
		maxChars = DefaultChunkMaxChars
	}
	kind := models.KindFor(strategy)
	out := make([]models.Chunk, 0)

	var (
		text   strings.Builder
		length int
		box    models.BBox
		group  []models.TextRun
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		ordinal := len(out)
		out = append(out, models.Chunk{
			ChunkID:    ChunkID(documentID, page, ordinal),
			DocumentID: documentID,
			Text:       text.String(),
			BBox:       box,
			Page:       page,
			ChunkIndex: ordinal,
			Kind:       kind,
			Strategy:   strategy,
			Runs:       group,
		})
		text.Reset()
		length = 0
		box = models.BBox{}
		group = nil
	}

	for _, run := range runs {
		if run.Page != page {
			continue
		}
		s := strings.Join(strings.Fields(SanitizeText(run.Text)), " ")
		if s == "" {
			continue
		}
		n := utf8.RuneCountInString(s)
		if len(group) > 0 && length+1+n > maxChars {
			flush()
		}
		if len(group) > 0 {
			text.WriteByte(' ')
			length++
		}
		text.WriteString(s)
		length += n
		box = box.Union(run.BBox)
		run.Text = s
		group = append(group, run)
	}
	flush()
	return out
}
