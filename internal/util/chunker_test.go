package util

import (
	"strings"
	"testing"

	"sniprag/internal/models"
)

func run(page int, text string, x0, y0, x1, y1 float64) models.TextRun {
	return models.TextRun{Text: text, Page: page, BBox: models.BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}, Confidence: 1}
}

func TestChunkRunsMergesUntilLimit(t *testing.T) {
	runs := []models.TextRun{
		run(0, "alpha beta", 10, 10, 60, 20),
		run(0, "gamma", 10, 22, 40, 32),
		run(0, "delta epsilon", 10, 34, 80, 44),
	}
	chunks := ChunkRuns("doc", 0, models.StrategyNative, runs, 16)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "alpha beta gamma" {
		t.Fatalf("unexpected first chunk: %q", chunks[0].Text)
	}
	if chunks[1].Text != "delta epsilon" {
		t.Fatalf("unexpected second chunk: %q", chunks[1].Text)
	}
	if chunks[0].Kind != models.ChunkKindSlice || chunks[0].ChunkID != "doc:0000:0000" || chunks[1].ChunkIndex != 1 {
		t.Fatalf("unexpected chunk identity: %+v", chunks[0])
	}
}

func TestChunkRunsOversizedRunIsKept(t *testing.T) {
	long := strings.Repeat("x", 40)
	chunks := ChunkRuns("doc", 2, models.StrategyOCR, []models.TextRun{
		run(2, "short", 0, 0, 10, 10),
		run(2, long, 0, 12, 100, 22),
		run(2, "tail", 0, 24, 10, 34),
	}, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != long {
		t.Fatalf("oversized run dropped or altered: %q", chunks[1].Text)
	}
	for _, c := range chunks {
		if c.Kind != models.ChunkKindBlock || c.Page != 2 {
			t.Fatalf("unexpected chunk: %+v", c)
		}
	}
}

func TestChunkRunsBoundingBoxContainsRuns(t *testing.T) {
	runs := []models.TextRun{
		run(0, "one", 50, 40, 80, 52),
		run(0, "two", 12, 60, 44, 70),
		run(0, "three", 30, 5, 90, 15),
		run(1, "other page", 0, 0, 500, 500),
	}
	chunks := ChunkRuns("doc", 0, models.StrategyNative, runs, 500)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	for _, r := range c.Runs {
		if !c.BBox.Contains(r.BBox) {
			t.Fatalf("chunk box %+v does not contain run %+v", c.BBox, r.BBox)
		}
		if r.Page != c.Page {
			t.Fatalf("chunk spans pages")
		}
	}
	want := models.BBox{X0: 12, Y0: 5, X1: 90, Y1: 70}
	if c.BBox != want {
		t.Fatalf("unexpected union box: %+v", c.BBox)
	}
}

func TestChunkRunsEmptyInput(t *testing.T) {
	if got := ChunkRuns("doc", 0, models.StrategyNative, nil, 100); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
	got := ChunkRuns("doc", 0, models.StrategyNative, []models.TextRun{run(0, " \x00 ", 0, 0, 1, 1)}, 100)
	if len(got) != 0 {
		t.Fatalf("whitespace run should be dropped, got %+v", got)
	}
}
