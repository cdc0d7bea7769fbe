package engine

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sniprag/internal/index"
	"sniprag/internal/models"
	"sniprag/internal/snippet"
	"sniprag/internal/util"
)

type SearchRequest struct {
	Query  string       `json:"query"`
	TopK   int          `json:"top_k"`
	Filter index.Filter `json:"filter"`
	// SnippetPadding overrides the configured padding in pixels.
	SnippetPadding *int `json:"snippet_padding,omitempty"`
	IncludeImages  bool `json:"include_images"`
}

// Search ranks indexed chunks against the query. Missing images are
// reported per result in ImageError; they never fail the search.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	padding := e.cfg.DefaultPadding
	if req.SnippetPadding != nil {
		if *req.SnippetPadding < 0 {
			return nil, fmt.Errorf("%w: %d", util.ErrInvalidPadding, *req.SnippetPadding)
		}
		padding = *req.SnippetPadding
	}
	hits, err := e.searcher.Search(ctx, req.Query, req.TopK, req.Filter)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{
			ChunkID:  h.Entry.ChunkID,
			Text:     h.Entry.Text,
			Score:    h.Score,
			Metadata: h.Entry.Metadata,
		}
	}
	if !req.IncludeImages || len(hits) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i := range hits {
		g.Go(func() error {
			png, err := e.render(gctx, hits[i].Entry, padding)
			if err != nil {
				results[i].ImageError = err.Error()
				e.log.WithFields(logrus.Fields{"chunk_id": hits[i].Entry.ChunkID}).WithError(err).Warn("snippet unavailable")
				return nil
			}
			results[i].ImageData = base64.StdEncoding.EncodeToString(png)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Snippet renders the region of one indexed chunk as PNG.
func (e *Engine) Snippet(ctx context.Context, documentID, chunkID string, padding int) ([]byte, error) {
	if padding < 0 {
		return nil, fmt.Errorf("%w: %d", util.ErrInvalidPadding, padding)
	}
	entries, err := e.Chunks(documentID)
	if err != nil {
		return nil, err
	}
	for _, en := range entries {
		if en.ChunkID == chunkID {
			return e.render(ctx, en, padding)
		}
	}
	return nil, fmt.Errorf("%w: chunk %s", util.ErrDocumentNotFound, chunkID)
}

func (e *Engine) render(ctx context.Context, en index.Entry, padding int) ([]byte, error) {
	id := en.Metadata.DocumentID
	e.mu.RLock()
	rec, ok := e.docs[id]
	var src snippet.Source
	if ok {
		src = rec.src
	}
	live, indexed := e.idx.Generation(id)
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: document %s was removed", util.ErrImage, id)
	}
	if !indexed || live != en.Generation {
		return nil, fmt.Errorf("%w: generation %d of %s was replaced", util.ErrImage, en.Generation, id)
	}
	return e.renderer.Render(ctx, src, en.Metadata.Page, en.Metadata.BBox, padding)
}
