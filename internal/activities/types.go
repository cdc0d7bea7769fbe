package activities

import "time"

type ListPDFsInput struct {
	InputDir string `json:"input_dir"`
}

type ListPDFsOutput struct {
	Paths []string `json:"paths"`
}

type ComputeDocumentIDInput struct {
	Path string `json:"path"`
}

type ComputeDocumentIDOutput struct {
	DocumentID string `json:"document_id"`
	SHA256     string `json:"sha256"`
}

// ProcessRemoteDocumentInput never carries credentials; the worker resolves
// them from its own configuration.
type ProcessRemoteDocumentInput struct {
	URI        string `json:"uri"`
	DocumentID string `json:"document_id"`
}

type ProcessRemoteDocumentOutput struct {
	DocumentID  string        `json:"document_id"`
	State       string        `json:"state"`
	Generation  uint64        `json:"generation"`
	Pages       int           `json:"pages"`
	Chunks      int           `json:"chunks"`
	Skipped     int           `json:"skipped"`
	FailReason  string        `json:"fail_reason,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

type WriteDocumentArtifactsInput struct {
	DocumentID    string         `json:"document_id"`
	ProcessingLog map[string]any `json:"processing_log"`
}

type WriteDocumentArtifactsOutput struct {
	Dir string `json:"dir"`
}

type WriteSummaryInput struct {
	RunID   string         `json:"run_id"`
	Summary map[string]any `json:"summary"`
}

type WriteSummaryOutput struct {
	Path string `json:"path"`
}

// ChunkArtifact is one line of chunks.jsonl.
type ChunkArtifact struct {
	ChunkID    string     `json:"chunk_id"`
	Page       int        `json:"page"`
	ChunkIndex int        `json:"chunk_index"`
	ChunkKind  string     `json:"chunk_kind"`
	BBox       [4]float64 `json:"bbox"`
	Generation uint64     `json:"generation"`
	Text       string     `json:"text"`
}
