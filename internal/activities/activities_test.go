package activities

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"sniprag/internal/config"
	"sniprag/internal/engine"
	"sniprag/internal/layout"
	"sniprag/internal/logging"
	"sniprag/internal/models"
	"sniprag/internal/pdftest"
)

type pdfRasterizer struct{}

func (pdfRasterizer) Pages(ctx context.Context, data []byte) ([]models.Page, error) {
	return layout.NewNative().Pages(ctx, layout.Source{Data: data})
}

func (pdfRasterizer) Render(_ context.Context, _ []byte, _ int, dpi float64) (image.Image, error) {
	s := dpi / 72
	return image.NewGray(image.Rect(0, 0, int(612*s), int(792*s))), nil
}

func newTestActivities(t *testing.T) (*Activities, config.Config) {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataInRoot = t.TempDir()
	cfg.DataOutRoot = t.TempDir()
	e, err := engine.New(context.Background(), engine.Options{Config: cfg, Logger: logging.Discard(), Rasterizer: pdfRasterizer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return New(cfg, e, logging.Discard()), cfg
}

func TestListPDFsAndComputeID(t *testing.T) {
	a, cfg := newTestActivities(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataInRoot, "B Report.PDF"), pdftest.Build(pdftest.Text("b")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataInRoot, "a.pdf"), pdftest.Build(pdftest.Text("a")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataInRoot, "notes.txt"), []byte("x"), 0o644))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.ListPDFsActivity, ListPDFsInput{InputDir: cfg.DataInRoot})
	require.NoError(t, err)
	var list ListPDFsOutput
	require.NoError(t, val.Get(&list))
	require.Len(t, list.Paths, 2)
	assert.Equal(t, "B Report.PDF", filepath.Base(list.Paths[0]))

	val, err = env.ExecuteActivity(a.ComputeDocumentIDActivity, ComputeDocumentIDInput{Path: list.Paths[0]})
	require.NoError(t, err)
	var id ComputeDocumentIDOutput
	require.NoError(t, val.Get(&id))
	assert.True(t, strings.HasPrefix(id.DocumentID, "b-report-"))
	assert.Len(t, id.SHA256, 64)
	assert.Equal(t, id.SHA256[:12], strings.TrimPrefix(id.DocumentID, "b-report-"))
}

func TestDocumentIDFor(t *testing.T) {
	assert.Equal(t, "doc-0123456789ab", DocumentIDFor("/x/???.pdf", "0123456789abcdef"))
	assert.Equal(t, "my_file-v2-abc", DocumentIDFor("My_File v2.pdf", "abc"))
}

func TestProcessRemoteDocumentAndArtifacts(t *testing.T) {
	a, cfg := newTestActivities(t)
	path := filepath.Join(cfg.DataInRoot, "doc.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.Build(pdftest.Text("artifact text line")), 0o644))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.ProcessRemoteDocumentActivity, ProcessRemoteDocumentInput{URI: "file://" + path, DocumentID: "doc"})
	require.NoError(t, err)
	var out ProcessRemoteDocumentOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, string(models.StateIndexed), out.State)
	assert.Equal(t, 1, out.Chunks)

	val, err = env.ExecuteActivity(a.WriteDocumentArtifactsActivity, WriteDocumentArtifactsInput{DocumentID: "doc", ProcessingLog: map[string]any{"status": "indexed"}})
	require.NoError(t, err)
	var art WriteDocumentArtifactsOutput
	require.NoError(t, val.Get(&art))
	for _, name := range []string{"document.json", "chunks.jsonl", "chunks.txt", "processing_log.json"} {
		_, err := os.Stat(filepath.Join(art.Dir, name))
		assert.NoError(t, err, name)
	}
	txt, err := os.ReadFile(filepath.Join(art.Dir, "chunks.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(txt), "doc:0000:0000\tartifact text line")
}

func TestProcessRemoteDocumentRejectedIsNotAnError(t *testing.T) {
	a, cfg := newTestActivities(t)
	path := filepath.Join(cfg.DataInRoot, "scan.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.Build(pdftest.Scanned()), 0o644))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.ProcessRemoteDocumentActivity, ProcessRemoteDocumentInput{URI: "file://" + path, DocumentID: "scan"})
	require.NoError(t, err)
	var out ProcessRemoteDocumentOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, string(models.StateFailed), out.State)
	assert.Contains(t, out.FailReason, "unsupported pdf")

	_, err = env.ExecuteActivity(a.ProcessRemoteDocumentActivity, ProcessRemoteDocumentInput{URI: "gopher://x", DocumentID: "g"})
	require.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	a, cfg := newTestActivities(t)
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.WriteSummaryActivity, WriteSummaryInput{RunID: "../run-1", Summary: map[string]any{"total": 2}})
	require.NoError(t, err)
	var out WriteSummaryOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, filepath.Join(cfg.DataOutRoot, "runs", "run-1", "ingest_summary.json"), out.Path)
	_, err = os.Stat(out.Path)
	require.NoError(t, err)
}
