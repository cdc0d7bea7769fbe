// Package engine ties extraction, chunking, embedding, search and snippet
// rendering together and owns the document lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"sniprag/internal/config"
	"sniprag/internal/fetch"
	"sniprag/internal/index"
	"sniprag/internal/layout"
	"sniprag/internal/logging"
	"sniprag/internal/models"
	"sniprag/internal/ocr"
	"sniprag/internal/ocr/tesseract"
	"sniprag/internal/pagecache"
	"sniprag/internal/providers"
	"sniprag/internal/raster"
	"sniprag/internal/raster/fitz"
	"sniprag/internal/snippet"
	"sniprag/internal/storage"
	"sniprag/internal/util"
	"sniprag/internal/vector"
)

// Options carries the collaborators of an Engine. Nil fields are built from
// Config.
type Options struct {
	Config     config.Config
	Logger     logrus.FieldLogger
	Provider   providers.EmbeddingProvider
	Rasterizer raster.Rasterizer
	Recognizer ocr.Recognizer
	Store      storage.SnapshotStore
	Fetcher    *fetch.Router
}

type record struct {
	doc models.Document
	// src holds the bytes of the live generation. It is empty after a reload
	// until the document is processed again.
	src snippet.Source
}

type Engine struct {
	cfg       config.Config
	log       logrus.FieldLogger
	strategy  models.Strategy
	extractor layout.Extractor
	cache     *pagecache.Cache
	renderer  *snippet.Renderer
	indexer   *index.Indexer
	searcher  *vector.Searcher
	idx       *index.Index
	store     storage.SnapshotStore
	fetcher   *fetch.Router
	provider  providers.ProviderRef

	mu   sync.RWMutex
	docs map[string]*record

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New builds an engine. Choosing the ocr strategy without a working
// recognizer fails here with ErrOCRUnavailable.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	e := &Engine{
		cfg:      cfg,
		log:      log.WithField("component", "engine"),
		strategy: cfg.ParsedStrategy(),
		docs:     map[string]*record{},
		locks:    map[string]*sync.Mutex{},
		store:    opts.Store,
		fetcher:  opts.Fetcher,
	}

	provider := opts.Provider
	if provider == nil {
		mgr, err := providers.NewManager(cfg)
		if err != nil {
			return nil, err
		}
		provider = mgr.FirstEmbedProvider()
		e.provider = mgr.FirstEmbedRef()
		for _, ref := range mgr.Unused() {
			e.log.WithField("provider", ref.String()).Warn("embedding provider configured but unused; only the first one builds the index")
		}
	} else {
		e.provider = providers.ProviderRef{Raw: "injected", Name: "injected"}
	}

	rz := opts.Rasterizer
	if rz == nil {
		rz = fitz.New()
	}
	e.cache = pagecache.New(cfg.PageCacheSize)
	e.renderer = snippet.NewRenderer(e.cache, rz, cfg.RenderDPI, cfg.SnippetMaxWidth)
	e.idx = index.New(cfg.EmbedDim)
	e.indexer = index.NewIndexer(provider, cfg.EmbedBatchSize)
	e.searcher = vector.NewSearcher(e.idx, e.indexer)

	switch e.strategy {
	case models.StrategyOCR:
		rec := opts.Recognizer
		if rec == nil {
			var err error
			rec, err = newRecognizer(cfg)
			if err != nil {
				return nil, err
			}
		}
		x, err := layout.NewOCR(rz, e.renderer, rec, cfg.RenderDPI)
		if err != nil {
			return nil, err
		}
		e.extractor = x
		e.log.WithField("recognizer", rec.Name()).Info("ocr extraction enabled")
	default:
		e.extractor = layout.NewNative()
	}

	if e.store == nil {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	if e.fetcher == nil {
		e.fetcher = fetch.NewRouter(fetch.Options{
			MaxBytes: cfg.FetchMaxBytes,
			FileRoot: cfg.DataInRoot,
			Defaults: fetch.Credentials{
				AccessKeyID:     cfg.S3AccessKeyID,
				SecretAccessKey: cfg.S3SecretAccessKey,
				Region:          cfg.S3Region,
				Endpoint:        cfg.S3Endpoint,
			},
		})
	}
	return e, nil
}

func newRecognizer(cfg config.Config) (ocr.Recognizer, error) {
	opts := ocr.Options{Path: cfg.TesseractPath, Languages: cfg.Languages(), TessdataDir: cfg.TessdataDir}
	switch cfg.OCREngine {
	case "gosseract":
		return tesseract.New(opts)
	default:
		return ocr.NewCLIRecognizer(opts)
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case "sqlite":
		return storage.OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return nil, nil
	}
}

// Close releases the snapshot store.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func (e *Engine) Strategy() models.Strategy { return e.strategy }

func (e *Engine) docLock(documentID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	m, ok := e.locks[documentID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[documentID] = m
	}
	return m
}

// Document returns a copy of the document record.
func (e *Engine) Document(documentID string) (models.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.docs[documentID]
	if !ok {
		return models.Document{}, fmt.Errorf("%w: %s", util.ErrDocumentNotFound, documentID)
	}
	return cloneDocument(rec.doc), nil
}

// Documents lists every known document ordered by id.
func (e *Engine) Documents() []models.Document {
	e.mu.RLock()
	out := make([]models.Document, 0, len(e.docs))
	for _, rec := range e.docs {
		out = append(out, cloneDocument(rec.doc))
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}

// Chunks returns the indexed entries of the live generation of a document.
func (e *Engine) Chunks(documentID string) ([]index.Entry, error) {
	if _, err := e.Document(documentID); err != nil {
		return nil, err
	}
	_, entries, ok := e.idx.Snapshot(documentID)
	if !ok {
		return []index.Entry{}, nil
	}
	return entries, nil
}

// RemoveDocument drops a document, its index entries, cached rasters and
// persisted snapshot.
func (e *Engine) RemoveDocument(ctx context.Context, documentID string) error {
	lock := e.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	_, ok := e.docs[documentID]
	if ok {
		delete(e.docs, documentID)
		e.idx.Delete(documentID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", util.ErrDocumentNotFound, documentID)
	}
	e.cache.InvalidateDocument(documentID)
	if e.store != nil {
		if err := e.store.DeleteDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete snapshot of %s: %w", documentID, err)
		}
	}
	e.log.WithField("document_id", documentID).Info("document removed")
	return nil
}

// Restore loads every persisted snapshot into the index. Restored documents
// rank exactly as before; their snippets need the source to be processed
// again.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	snaps, err := e.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}
	restored := 0
	for _, s := range snaps {
		id := s.Document.DocumentID
		lock := e.docLock(id)
		lock.Lock()
		e.mu.Lock()
		if s.Document.State == models.StateIndexed {
			if err := e.idx.Restore(id, s.Generation, s.Entries); err != nil {
				e.mu.Unlock()
				lock.Unlock()
				return restored, fmt.Errorf("restore %s: %w", id, err)
			}
			restored++
		}
		doc := cloneDocument(s.Document)
		doc.Generation = s.Generation
		e.docs[id] = &record{doc: doc}
		e.mu.Unlock()
		lock.Unlock()
	}
	e.log.WithFields(logrus.Fields{"documents": len(snaps), "indexed": restored}).Info("snapshots restored")
	return restored, nil
}

// Stats summarizes the engine. Searchable lists the documents with a live
// generation in the index.
type Stats struct {
	Strategy   models.Strategy              `json:"strategy"`
	Provider   string                       `json:"embed_provider"`
	Documents  map[models.DocumentState]int `json:"documents"`
	Searchable []string                     `json:"searchable"`
	Entries    int                          `json:"entries"`
	Dimension  int                          `json:"dimension"`
	Cache      pagecache.Stats              `json:"page_cache"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		Strategy:   e.strategy,
		Provider:   e.provider.Raw,
		Documents:  map[models.DocumentState]int{},
		Searchable: e.idx.Documents(),
		Entries:    e.idx.Len(),
		Dimension:  e.idx.Dimension(),
		Cache:      e.cache.Stats(),
	}
	e.mu.RLock()
	for _, rec := range e.docs {
		st.Documents[rec.doc.State]++
	}
	e.mu.RUnlock()
	return st
}

func cloneDocument(d models.Document) models.Document {
	d.Pages = append([]models.Page(nil), d.Pages...)
	d.Diagnostics = append([]models.Diagnostic(nil), d.Diagnostics...)
	return d
}

// isFatal reports errors that indicate a bug rather than a bad document.
func isFatal(err error) bool {
	return errors.Is(err, util.ErrIndexInconsistency)
}
