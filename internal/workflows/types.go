package workflows

type DocumentIngestInput struct {
	URI            string `json:"uri"`
	DocumentID     string `json:"document_id"`
	WriteArtifacts bool   `json:"write_artifacts"` // document.json and chunks.jsonl after indexing
}

type DirectoryIngestInput struct {
	RunID                 string `json:"run_id"`
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	WriteArtifacts        bool   `json:"write_artifacts"`
}

type DocumentStatus struct {
	DocumentID  string            `json:"document_id"`
	URI         string            `json:"uri"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Generation  uint64            `json:"generation,omitempty"`
	Chunks      int               `json:"chunks"`
	Skipped     int               `json:"skipped"`
	Steps       map[string]string `json:"steps"`
}

type DirectoryIngestProgress struct {
	RunID         string            `json:"run_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	DocumentIDs   map[string]string `json:"document_ids"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
