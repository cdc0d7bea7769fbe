package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sniprag/internal/fetch"
	"sniprag/internal/models"
	"sniprag/internal/snippet"
	"sniprag/internal/storage"
	"sniprag/internal/util"
)

// Report describes one ingestion. Skipped chunks are listed in Diagnostics
// and do not make the ingestion fail.
type Report struct {
	DocumentID  string               `json:"document_id"`
	State       models.DocumentState `json:"state"`
	Strategy    models.Strategy      `json:"strategy"`
	Generation  uint64               `json:"generation"`
	Pages       int                  `json:"pages"`
	Chunks      int                  `json:"chunks"`
	Skipped     int                  `json:"skipped"`
	Diagnostics []models.Diagnostic  `json:"diagnostics,omitempty"`
	FailReason  string               `json:"fail_reason,omitempty"`
	Elapsed     time.Duration        `json:"elapsed_ns"`
}

func (r Report) Success() bool { return r.State == models.StateIndexed }

// ProcessDocument ingests PDF bytes under documentID. Only indexed documents
// are searchable, so a previous generation of the same id leaves the index
// when extraction starts and the new generation is swapped in whole. If
// ingestion fails the document becomes failed.
func (e *Engine) ProcessDocument(ctx context.Context, documentID string, data []byte) (Report, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return Report{}, util.ErrInvalidDocumentID
	}
	lock := e.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	version := util.SHA256Hex(data)
	log := e.log.WithFields(logrus.Fields{"document_id": documentID, "strategy": e.strategy, "sha256": util.ShortHash(version)})
	e.markExtracting(documentID)
	log.Info("extracting")

	src := snippet.Source{DocumentID: documentID, Version: version, Data: data}
	pages, chunks, err := e.extract(ctx, &src)
	if err != nil {
		return e.fail(ctx, documentID, version, pages, err, start)
	}
	build, err := e.indexer.Build(ctx, documentID, chunks, e.idx.Dimension())
	if err != nil {
		return e.fail(ctx, documentID, version, pages, err, start)
	}
	for _, d := range build.Diagnostics {
		log.WithFields(logrus.Fields{"chunk_id": d.ChunkID, "page": d.Page}).Warn(d.Message)
	}

	gen := e.idx.NextGeneration()
	doc := models.Document{
		DocumentID:  documentID,
		State:       models.StateIndexed,
		Strategy:    e.strategy,
		Pages:       pages,
		ChunkCount:  len(build.Entries),
		Generation:  gen,
		Diagnostics: build.Diagnostics,
		SHA256:      version,
		UpdatedAt:   time.Now().UTC(),
	}
	if e.store != nil {
		snap := storage.DocumentSnapshot{Document: doc, Generation: gen, Entries: build.Entries}
		if err := e.store.SaveDocument(ctx, snap); err != nil {
			return e.fail(ctx, documentID, version, pages, fmt.Errorf("persist snapshot: %w", err), start)
		}
	}

	e.mu.Lock()
	if err := e.idx.Restore(documentID, gen, build.Entries); err != nil {
		e.mu.Unlock()
		return e.fail(ctx, documentID, version, pages, err, start)
	}
	e.docs[documentID] = &record{doc: doc, src: src}
	e.mu.Unlock()
	e.cache.Retain(documentID, version)

	rep := Report{
		DocumentID:  documentID,
		State:       models.StateIndexed,
		Strategy:    e.strategy,
		Generation:  gen,
		Pages:       len(pages),
		Chunks:      len(build.Entries),
		Skipped:     len(chunks) - len(build.Entries),
		Diagnostics: build.Diagnostics,
		Elapsed:     time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"generation": gen,
		"pages":      rep.Pages,
		"chunks":     rep.Chunks,
		"skipped":    rep.Skipped,
		"elapsed":    rep.Elapsed.String(),
	}).Info("indexed")
	return rep, nil
}

// ProcessDocumentFromRemote fetches uri and ingests the bytes. The fetch
// happens before the document enters the extracting state, so a fetch error
// leaves the document untouched.
func (e *Engine) ProcessDocumentFromRemote(ctx context.Context, uri, documentID string, creds fetch.Credentials) (Report, error) {
	if strings.TrimSpace(documentID) == "" {
		return Report{}, util.ErrInvalidDocumentID
	}
	if e.fetcher == nil {
		return Report{}, fmt.Errorf("fetch %s: no fetcher configured", documentID)
	}
	data, err := e.fetcher.Fetch(ctx, uri, creds)
	if err != nil {
		e.log.WithFields(logrus.Fields{"document_id": documentID}).WithError(err).Warn("fetch failed")
		return Report{DocumentID: documentID, State: e.state(documentID), Strategy: e.strategy}, fmt.Errorf("fetch %s: %w", documentID, err)
	}
	return e.ProcessDocument(ctx, documentID, data)
}

func (e *Engine) state(documentID string) models.DocumentState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if rec, ok := e.docs[documentID]; ok {
		return rec.doc.State
	}
	return models.StateUnprocessed
}

// markExtracting publishes the extracting state and withdraws the live
// generation from search in the same critical section.
func (e *Engine) markExtracting(documentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idx.Delete(documentID)
	rec, ok := e.docs[documentID]
	if !ok {
		rec = &record{doc: models.Document{DocumentID: documentID, State: models.StateUnprocessed, Strategy: e.strategy}}
		e.docs[documentID] = rec
	}
	rec.doc.State = models.StateExtracting
	rec.doc.UpdatedAt = time.Now().UTC()
}

// extract reads the page list, extracts pages in parallel and chunks them
// in page order.
func (e *Engine) extract(ctx context.Context, src *snippet.Source) ([]models.Page, []models.Chunk, error) {
	pages, err := e.extractor.Pages(ctx, *src)
	if err != nil {
		return nil, nil, fmt.Errorf("read pages: %w", err)
	}
	src.Pages = pages

	runs := make([][]models.TextRun, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, p := range pages {
		g.Go(func() error {
			r, err := e.extractor.ExtractPage(gctx, *src, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.Index, err)
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pages, nil, err
	}

	chunks := make([]models.Chunk, 0, len(pages))
	for i, p := range pages {
		chunks = append(chunks, util.ChunkRuns(src.DocumentID, p.Index, e.strategy, runs[i], e.cfg.ChunkMaxChars)...)
	}
	return pages, chunks, nil
}

func (e *Engine) workers() int {
	if e.cfg.ExtractWorkers > 0 {
		return e.cfg.ExtractWorkers
	}
	return 1
}

// fail retires the document's live generation and records cause.
func (e *Engine) fail(ctx context.Context, documentID, version string, pages []models.Page, cause error, start time.Time) (Report, error) {
	e.mu.Lock()
	rec, ok := e.docs[documentID]
	if !ok {
		rec = &record{}
		e.docs[documentID] = rec
	}
	e.idx.Delete(documentID)
	rec.doc = models.Document{
		DocumentID: documentID,
		State:      models.StateFailed,
		Strategy:   e.strategy,
		Pages:      pages,
		FailReason: cause.Error(),
		SHA256:     version,
		UpdatedAt:  time.Now().UTC(),
	}
	rec.src = snippet.Source{}
	doc := cloneDocument(rec.doc)
	e.mu.Unlock()
	e.cache.InvalidateDocument(documentID)

	log := e.log.WithFields(logrus.Fields{"document_id": documentID, "strategy": e.strategy}).WithError(cause)
	if isFatal(cause) {
		log.Error("index inconsistency")
	} else {
		log.Warn("document failed")
	}
	if e.store != nil {
		if err := e.store.SaveDocument(context.WithoutCancel(ctx), storage.DocumentSnapshot{Document: doc}); err != nil {
			log.WithField("persist_error", err.Error()).Warn("could not persist failed state")
		}
	}
	return Report{
		DocumentID: documentID,
		State:      models.StateFailed,
		Strategy:   e.strategy,
		Pages:      len(pages),
		FailReason: doc.FailReason,
		Elapsed:    time.Since(start),
	}, fmt.Errorf("process %s: %w", documentID, cause)
}
