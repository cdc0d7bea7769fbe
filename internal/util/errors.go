package util

import "errors"

var (
	// ErrUnsupportedPDF is returned by native extraction when a page carries
	// no text layer (scanned image only). Callers switch to OCR themselves.
	ErrUnsupportedPDF = errors.New("unsupported pdf: page has no extractable text layer")
	ErrOCRUnavailable = errors.New("ocr recognizer unavailable")
	ErrEmbedding      = errors.New("embedding error")
	ErrInvalidPadding = errors.New("invalid snippet padding")
	ErrImage          = errors.New("image error")
	// ErrIndexInconsistency signals a chunk/metadata mismatch. It indicates a
	// bug and is never recovered locally.
	ErrIndexInconsistency = errors.New("index inconsistency")

	ErrInvalidTopK       = errors.New("topK must be >= 1")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrEmptyDocument     = errors.New("empty document source")
	ErrInvalidDocumentID = errors.New("document id is required")
)
