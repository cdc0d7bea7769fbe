package index

import (
	"context"
	"errors"
	"fmt"
	"math"

	"sniprag/internal/models"
	"sniprag/internal/providers"
	"sniprag/internal/util"
)

const DefaultBatchSize = 32

// Indexer embeds chunks into index entries. It does not touch the Index; the
// caller installs the result with Replace.
type Indexer struct {
	provider  providers.EmbeddingProvider
	batchSize int
}

func NewIndexer(p providers.EmbeddingProvider, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{provider: p, batchSize: batchSize}
}

// Build is the embedded form of one document.
type Build struct {
	DocumentID  string
	Entries     []Entry
	Diagnostics []models.Diagnostic
	Provider    providers.ProviderInfo
}

// Build embeds chunks in batches. Chunks whose vector is missing, has the
// wrong dimension or holds non-finite values are skipped with a diagnostic.
// dim <= 0 lets the first valid vector fix the dimension. Only context
// cancellation aborts the build.
func (ix *Indexer) Build(ctx context.Context, documentID string, chunks []models.Chunk, dim int) (Build, error) {
	out := Build{DocumentID: documentID, Entries: make([]Entry, 0, len(chunks))}
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		inputs := make([]string, len(batch))
		for i, c := range batch {
			if c.DocumentID != documentID {
				return Build{}, fmt.Errorf("%w: chunk %s belongs to %q", util.ErrIndexInconsistency, c.ChunkID, c.DocumentID)
			}
			inputs[i] = c.Text
		}
		vectors, info, err := ix.provider.Embed(ctx, providers.EmbedRequest{Purpose: providers.PurposeDocument, Inputs: inputs, Dimension: dim})
		out.Provider = info
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Build{}, ctxErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Build{}, err
			}
			for _, c := range batch {
				out.Diagnostics = append(out.Diagnostics, embeddingDiag(c, fmt.Sprintf("%s provider error (%s): %v", info.Name, providers.ClassifyError(err), err)))
			}
			continue
		}
		if len(vectors) != len(batch) {
			for _, c := range batch {
				out.Diagnostics = append(out.Diagnostics, embeddingDiag(c, fmt.Sprintf("provider returned %d vectors for %d inputs", len(vectors), len(batch))))
			}
			continue
		}
		for i, c := range batch {
			v := vectors[i]
			if dim <= 0 && len(v) > 0 {
				dim = len(v)
			}
			if msg := validateVector(v, dim); msg != "" {
				out.Diagnostics = append(out.Diagnostics, embeddingDiag(c, msg))
				continue
			}
			out.Entries = append(out.Entries, Entry{
				ChunkID:  c.ChunkID,
				Text:     c.Text,
				Vector:   v,
				Metadata: c.Metadata(),
			})
		}
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (ix *Indexer) EmbedQuery(ctx context.Context, query string, dim int) ([]float32, error) {
	vectors, info, err := ix.provider.Embed(ctx, providers.EmbedRequest{Purpose: providers.PurposeQuery, Inputs: []string{query}, Dimension: dim})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrEmbedding, info.Name, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: provider returned %d vectors for one query", util.ErrEmbedding, len(vectors))
	}
	if dim <= 0 {
		dim = len(vectors[0])
	}
	if msg := validateVector(vectors[0], dim); msg != "" {
		return nil, fmt.Errorf("%w: query %s", util.ErrEmbedding, msg)
	}
	return vectors[0], nil
}

func validateVector(v []float32, dim int) string {
	if len(v) == 0 {
		return "empty vector"
	}
	if len(v) != dim {
		return fmt.Sprintf("vector has dimension %d, want %d", len(v), dim)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("vector component %d is not finite", i)
		}
	}
	return ""
}

func embeddingDiag(c models.Chunk, msg string) models.Diagnostic {
	return models.Diagnostic{
		ChunkID: c.ChunkID,
		Page:    c.Page,
		Kind:    "embedding",
		Message: fmt.Sprintf("%v: %s", util.ErrEmbedding, msg),
	}
}
