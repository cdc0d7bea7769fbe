package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/temporal"

	"sniprag/internal/config"
	"sniprag/internal/engine"
	"sniprag/internal/fetch"
	"sniprag/internal/models"
	"sniprag/internal/util"
)

type Activities struct {
	cfg    config.Config
	engine *engine.Engine
	log    logrus.FieldLogger
}

func New(cfg config.Config, e *engine.Engine, log logrus.FieldLogger) *Activities {
	return &Activities{cfg: cfg, engine: e, log: log.WithField("component", "activities")}
}

func (a *Activities) ListPDFsActivity(ctx context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListPDFsOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".pdf") {
			paths = append(paths, filepath.Join(in.InputDir, name))
		}
	}
	sort.Strings(paths)
	return ListPDFsOutput{Paths: paths}, nil
}

// ComputeDocumentIDActivity derives a stable id from the file name and the
// first 12 hex digits of its content hash.
func (a *Activities) ComputeDocumentIDActivity(ctx context.Context, in ComputeDocumentIDInput) (ComputeDocumentIDOutput, error) {
	_ = ctx
	f, err := os.Open(in.Path)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("hash file: %w", err)
	}
	return ComputeDocumentIDOutput{DocumentID: DocumentIDFor(in.Path, sum), SHA256: sum}, nil
}

func DocumentIDFor(path, sha string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "doc"
	}
	return name + "-" + util.ShortHash(sha)
}

// ProcessRemoteDocumentActivity fetches and ingests one document. A document
// the engine rejects is a result, not an activity error, so it is not
// retried. Fetch errors are returned and retried unless they cannot succeed.
func (a *Activities) ProcessRemoteDocumentActivity(ctx context.Context, in ProcessRemoteDocumentInput) (ProcessRemoteDocumentOutput, error) {
	rep, err := a.engine.ProcessDocumentFromRemote(ctx, in.URI, in.DocumentID, fetch.Credentials{})
	out := ProcessRemoteDocumentOutput{
		DocumentID: in.DocumentID,
		State:      string(rep.State),
		Generation: rep.Generation,
		Pages:      rep.Pages,
		Chunks:     rep.Chunks,
		Skipped:    rep.Skipped,
		FailReason: rep.FailReason,
		Elapsed:    rep.Elapsed,
	}
	for _, d := range rep.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s: %s", d.ChunkID, d.Message))
	}
	if err == nil || rep.State == models.StateFailed {
		return out, nil
	}
	if errors.Is(err, util.ErrInvalidDocumentID) || errors.Is(err, fetch.ErrUnsupportedScheme) || errors.Is(err, fetch.ErrTooLarge) {
		return out, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	return out, err
}

// WriteDocumentArtifactsActivity writes document.json, chunks.jsonl and a
// readable chunks.txt for the live generation of a document.
func (a *Activities) WriteDocumentArtifactsActivity(ctx context.Context, in WriteDocumentArtifactsInput) (WriteDocumentArtifactsOutput, error) {
	_ = ctx
	doc, err := a.engine.Document(in.DocumentID)
	if err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	entries, err := a.engine.Chunks(in.DocumentID)
	if err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	base, err := util.SafeJoin(filepath.Join(a.cfg.DataOutRoot, "documents"), in.DocumentID)
	if err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	if err := util.WriteJSONAtomic(filepath.Join(base, "document.json"), doc); err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	rows := make([]ChunkArtifact, 0, len(entries))
	var txt strings.Builder
	for _, e := range entries {
		m := e.Metadata
		rows = append(rows, ChunkArtifact{
			ChunkID:    e.ChunkID,
			Page:       m.Page,
			ChunkIndex: m.ChunkIndex,
			ChunkKind:  string(m.ChunkKind),
			BBox:       [4]float64{m.BBox.X0, m.BBox.Y0, m.BBox.X1, m.BBox.Y1},
			Generation: e.Generation,
			Text:       e.Text,
		})
		fmt.Fprintf(&txt, "%s\t%s\n", e.ChunkID, util.DisplaySnippet(e.Text, 120))
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(base, "chunks.jsonl"), rows); err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	if err := util.WriteFileAtomic(filepath.Join(base, "chunks.txt"), []byte(txt.String())); err != nil {
		return WriteDocumentArtifactsOutput{}, err
	}
	if in.ProcessingLog != nil {
		if err := util.WriteJSONAtomic(filepath.Join(base, "processing_log.json"), in.ProcessingLog); err != nil {
			return WriteDocumentArtifactsOutput{}, err
		}
	}
	return WriteDocumentArtifactsOutput{Dir: base}, nil
}

func (a *Activities) WriteSummaryActivity(ctx context.Context, in WriteSummaryInput) (WriteSummaryOutput, error) {
	_ = ctx
	runDir, err := util.SafeJoin(filepath.Join(a.cfg.DataOutRoot, "runs"), in.RunID)
	if err != nil {
		return WriteSummaryOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	path := filepath.Join(runDir, "ingest_summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteSummaryOutput{}, err
	}
	a.log.WithFields(logrus.Fields{"run_id": in.RunID, "path": path}).Info("ingest summary written")
	return WriteSummaryOutput{Path: path}, nil
}
