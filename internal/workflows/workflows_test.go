package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"sniprag/internal/activities"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerDocumentActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ProcessRemoteDocumentActivity", func(context.Context, activities.ProcessRemoteDocumentInput) (activities.ProcessRemoteDocumentOutput, error) {
		return activities.ProcessRemoteDocumentOutput{}, nil
	})
	registerActivityName(env, "WriteDocumentArtifactsActivity", func(context.Context, activities.WriteDocumentArtifactsInput) (activities.WriteDocumentArtifactsOutput, error) {
		return activities.WriteDocumentArtifactsOutput{}, nil
	})
}

func TestDocumentIngestWorkflowIndexed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, activities.ProcessRemoteDocumentInput{URI: "file:///data/in/a.pdf", DocumentID: "a"}).
		Return(activities.ProcessRemoteDocumentOutput{DocumentID: "a", State: "indexed", Generation: 1, Pages: 2, Chunks: 4}, nil)
	env.OnActivity("WriteDocumentArtifactsActivity", mock.Anything, mock.Anything).
		Return(activities.WriteDocumentArtifactsOutput{Dir: "/data/out/documents/a"}, nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{URI: "file:///data/in/a.pdf", DocumentID: "a", WriteArtifacts: true})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, StatusIndexed, out)

	res, err := env.QueryWorkflow(QueryGetDocumentStatus)
	require.NoError(t, err)
	var status DocumentStatus
	require.NoError(t, res.Get(&status))
	require.Equal(t, StatusIndexed, status.Status)
	require.Equal(t, 4, status.Chunks)
	require.Equal(t, uint64(1), status.Generation)
	require.Equal(t, "done", status.Steps["process_document"])
	require.Equal(t, "done", status.Steps["write_artifacts"])
	env.AssertExpectations(t)
}

func TestDocumentIngestWorkflowFailedDocument(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ProcessRemoteDocumentOutput{DocumentID: "scan", State: "failed", FailReason: "page 1 needs OCR"}, nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{URI: "s3://bucket/scan.pdf?X-Amz-Signature=secret", DocumentID: "scan", WriteArtifacts: true})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, StatusFailed, out)

	res, err := env.QueryWorkflow(QueryGetDocumentStatus)
	require.NoError(t, err)
	var status DocumentStatus
	require.NoError(t, res.Get(&status))
	require.Equal(t, "page 1 needs OCR", status.FailReason)
	require.Equal(t, "s3://bucket/scan.pdf", status.URI)
	_, wrote := status.Steps["write_artifacts"]
	require.False(t, wrote)
}

func TestDocumentIngestWorkflowActivityError(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ProcessRemoteDocumentOutput{}, errors.New("fetch refused"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{URI: "https://example.com/a.pdf", DocumentID: "a"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestDirectoryIngestWorkflowCountsFailures(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DirectoryIngestWorkflow)
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)
	registerActivityName(env, "ListPDFsActivity", func(context.Context, activities.ListPDFsInput) (activities.ListPDFsOutput, error) {
		return activities.ListPDFsOutput{}, nil
	})
	registerActivityName(env, "ComputeDocumentIDActivity", func(context.Context, activities.ComputeDocumentIDInput) (activities.ComputeDocumentIDOutput, error) {
		return activities.ComputeDocumentIDOutput{}, nil
	})
	registerActivityName(env, "WriteSummaryActivity", func(context.Context, activities.WriteSummaryInput) (activities.WriteSummaryOutput, error) {
		return activities.WriteSummaryOutput{}, nil
	})

	env.OnActivity("ListPDFsActivity", mock.Anything, activities.ListPDFsInput{InputDir: "/data/in"}).
		Return(activities.ListPDFsOutput{Paths: []string{"/data/in/a.pdf", "/data/in/b.pdf", "/data/in/c.pdf"}}, nil)
	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, activities.ComputeDocumentIDInput{Path: "/data/in/a.pdf"}).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "a-111"}, nil)
	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, activities.ComputeDocumentIDInput{Path: "/data/in/b.pdf"}).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "b-222"}, nil)
	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, activities.ComputeDocumentIDInput{Path: "/data/in/c.pdf"}).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "c-333"}, nil)
	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, activities.ProcessRemoteDocumentInput{URI: "file:///data/in/a.pdf", DocumentID: "a-111"}).
		Return(activities.ProcessRemoteDocumentOutput{DocumentID: "a-111", State: "indexed", Chunks: 2}, nil)
	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, activities.ProcessRemoteDocumentInput{URI: "file:///data/in/b.pdf", DocumentID: "b-222"}).
		Return(activities.ProcessRemoteDocumentOutput{DocumentID: "b-222", State: "failed", FailReason: "no text"}, nil)
	env.OnActivity("ProcessRemoteDocumentActivity", mock.Anything, activities.ProcessRemoteDocumentInput{URI: "file:///data/in/c.pdf", DocumentID: "c-333"}).
		Return(activities.ProcessRemoteDocumentOutput{DocumentID: "c-333", State: "indexed", Chunks: 1}, nil)

	var summary activities.WriteSummaryInput
	env.OnActivity("WriteSummaryActivity", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { summary = args.Get(1).(activities.WriteSummaryInput) }).
		Return(activities.WriteSummaryOutput{}, nil)

	env.ExecuteWorkflow(DirectoryIngestWorkflow, DirectoryIngestInput{RunID: "run-1", InputDir: "/data/in", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	res, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress DirectoryIngestProgress
	require.NoError(t, res.Get(&progress))
	require.Equal(t, 3, progress.Total)
	require.Equal(t, 3, progress.Done)
	require.Equal(t, 1, progress.Failed)
	require.Equal(t, StatusFailed, progress.PerDocument["/data/in/b.pdf"])
	require.Equal(t, StatusIndexed, progress.PerDocument["/data/in/a.pdf"])
	require.Equal(t, "document-run-1-a-111", progress.ChildWorkflow["/data/in/a.pdf"])
	require.Equal(t, "run-1", summary.RunID)
}

func TestSanitizeID(t *testing.T) {
	require.Equal(t, "report-v2-pdf", sanitizeID("Report_v2.pdf"))
	require.Equal(t, "a-b", sanitizeID("a/b"))
}
