package workflows

import (
	"path/filepath"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"sniprag/internal/activities"
	"sniprag/internal/models"
)

const (
	QueryGetDocumentStatus = "GetDocumentStatus"
	QueryGetProgress       = "GetProgress"

	StatusIndexed = "indexed"
	StatusFailed  = "failed"
)

// DocumentIngestWorkflow fetches and ingests one document. A document the
// engine rejects completes the workflow with StatusFailed rather than an
// error.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := DocumentStatus{
		DocumentID:  input.DocumentID,
		URI:         redactURI(input.URI),
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.CurrentStep = "process_document"
	status.Steps[status.CurrentStep] = "processing"
	var out activities.ProcessRemoteDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ProcessRemoteDocumentActivity", activities.ProcessRemoteDocumentInput{
		URI:        input.URI,
		DocumentID: input.DocumentID,
	}).Get(ctx, &out); err != nil {
		status.Status = StatusFailed
		status.FailReason = err.Error()
		status.Steps[status.CurrentStep] = "failed"
		return "", err
	}
	status.Generation = out.Generation
	status.Chunks = out.Chunks
	status.Skipped = out.Skipped
	if out.State == string(models.StateFailed) {
		status.Status = StatusFailed
		status.FailReason = out.FailReason
		status.Steps[status.CurrentStep] = "failed"
		return status.Status, nil
	}
	status.Steps[status.CurrentStep] = "done"

	if input.WriteArtifacts {
		status.CurrentStep = "write_artifacts"
		status.Steps[status.CurrentStep] = "processing"
		if err := workflow.ExecuteActivity(ctx, "WriteDocumentArtifactsActivity", activities.WriteDocumentArtifactsInput{
			DocumentID: input.DocumentID,
			ProcessingLog: map[string]any{
				"status":       StatusIndexed,
				"steps":        status.Steps,
				"generation":   out.Generation,
				"chunks":       out.Chunks,
				"skipped":      out.Skipped,
				"diagnostics":  out.Diagnostics,
				"generated_at": workflow.Now(ctx),
			},
		}).Get(ctx, nil); err != nil {
			return "", err
		}
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "done"
	status.Status = StatusIndexed
	return status.Status, nil
}

// DirectoryIngestWorkflow ingests every PDF of a directory through child
// DocumentIngestWorkflows, at most MaxConcurrentChildren at a time, and
// writes a run summary.
func DirectoryIngestWorkflow(ctx workflow.Context, input DirectoryIngestInput) (string, error) {
	progress := DirectoryIngestProgress{
		RunID:         input.RunID,
		PerDocument:   map[string]string{},
		DocumentIDs:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (DirectoryIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(ctx, "ListPDFsActivity", activities.ListPDFsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			var idOut activities.ComputeDocumentIDOutput
			if err := workflow.ExecuteActivity(ctx, "ComputeDocumentIDActivity", activities.ComputeDocumentIDInput{Path: path}).Get(ctx, &idOut); err != nil {
				progress.Failed++
				progress.Done++
				progress.PerDocument[path] = StatusFailed
				continue
			}
			progress.PerDocument[path] = "processing"
			progress.DocumentIDs[path] = idOut.DocumentID
			workflowID := "document-" + sanitizeID(input.RunID) + "-" + sanitizeID(idOut.DocumentID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				URI:            fileURI(path),
				DocumentID:     idOut.DocumentID,
				WriteArtifacts: input.WriteArtifacts,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			progress.Done++
			if err != nil {
				progress.Failed++
				progress.PerDocument[path] = StatusFailed
				continue
			}
			if childStatus == StatusFailed {
				progress.Failed++
			}
			progress.PerDocument[path] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteSummaryActivity", activities.WriteSummaryInput{
		RunID: input.RunID,
		Summary: map[string]any{
			"run_id":              input.RunID,
			"input_dir":           input.InputDir,
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"per_document_status": progress.PerDocument,
			"document_ids":        progress.DocumentIDs,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// redactURI drops query strings, which may carry presigned credentials.
func redactURI(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
