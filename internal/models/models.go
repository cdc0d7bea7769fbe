package models

import (
	"math"
	"time"
)

type Strategy string

const (
	StrategyNative Strategy = "native"
	StrategyOCR    Strategy = "ocr"
)

// ParseStrategy maps configuration values onto a Strategy. "semantic" is
// accepted as an alias for native extraction.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "native", "semantic", "":
		return StrategyNative, true
	case "ocr":
		return StrategyOCR, true
	default:
		return "", false
	}
}

type ChunkKind string

const (
	ChunkKindSlice ChunkKind = "slice"
	ChunkKindBlock ChunkKind = "block"
)

// KindFor returns the chunk kind produced by an extraction strategy.
func KindFor(s Strategy) ChunkKind {
	if s == StrategyOCR {
		return ChunkKindBlock
	}
	return ChunkKindSlice
}

type DocumentState string

const (
	StateUnprocessed DocumentState = "unprocessed"
	StateExtracting  DocumentState = "extracting"
	StateIndexed     DocumentState = "indexed"
	StateFailed      DocumentState = "failed"
)

// BBox is an axis-aligned box in page coordinates (points, origin top-left).
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

func (b BBox) IsEmpty() bool { return b.X1 <= b.X0 || b.Y1 <= b.Y0 }

// Union returns the smallest box enclosing both boxes. A zero box is treated
// as absent so it does not pull the union towards the origin.
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	return BBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}
}

func (b BBox) Contains(o BBox) bool {
	return o.X0 >= b.X0 && o.Y0 >= b.Y0 && o.X1 <= b.X1 && o.Y1 <= b.Y1
}

type Page struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type TextRun struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Page       int     `json:"page"`
	Confidence float64 `json:"confidence"`
}

type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	BBox       BBox      `json:"bbox"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	Kind       ChunkKind `json:"chunk_kind"`
	Strategy   Strategy  `json:"strategy"`
	Runs       []TextRun `json:"-"`
}

// ChunkMetadata is the snapshot stored alongside every index entry. It is a
// copy and never points back into a Document.
type ChunkMetadata struct {
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkKind  ChunkKind `json:"chunk_kind"`
	Strategy   Strategy  `json:"strategy"`
	BBox       BBox      `json:"bbox"`
}

func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		DocumentID: c.DocumentID,
		Page:       c.Page,
		ChunkIndex: c.ChunkIndex,
		ChunkKind:  c.Kind,
		Strategy:   c.Strategy,
		BBox:       c.BBox,
	}
}

type Diagnostic struct {
	ChunkID string `json:"chunk_id,omitempty"`
	Page    int    `json:"page"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Document struct {
	DocumentID  string        `json:"document_id"`
	State       DocumentState `json:"state"`
	Strategy    Strategy      `json:"strategy"`
	Pages       []Page        `json:"pages"`
	ChunkCount  int           `json:"chunk_count"`
	Generation  uint64        `json:"generation"`
	FailReason  string        `json:"fail_reason,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	SHA256      string        `json:"sha256,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type SearchResult struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	Score      float64       `json:"score"`
	Metadata   ChunkMetadata `json:"metadata"`
	ImageData  string        `json:"image_data,omitempty"`
	ImageError string        `json:"image_error,omitempty"`
}
