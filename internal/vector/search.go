package vector

import (
	"context"

	"sniprag/internal/index"
	"sniprag/internal/util"
)

// Searcher embeds queries and ranks them against an index.
type Searcher struct {
	idx      *index.Index
	embedder *index.Indexer
}

func NewSearcher(idx *index.Index, embedder *index.Indexer) *Searcher {
	return &Searcher{idx: idx, embedder: embedder}
}

// Search returns at most topK hits ordered by descending cosine similarity,
// ties broken by ascending chunk id. An empty index yields an empty slice.
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter index.Filter) ([]index.Hit, error) {
	if topK < 1 {
		return nil, util.ErrInvalidTopK
	}
	dim := s.idx.Dimension()
	if dim == 0 || s.idx.Len() == 0 {
		return []index.Hit{}, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query, dim)
	if err != nil {
		return nil, err
	}
	return s.idx.Search(vec, topK, filter)
}
