package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniprag/internal/index"
	"sniprag/internal/models"
	"sniprag/internal/providers"
	"sniprag/internal/util"
)

func TestSearcher(t *testing.T) {
	p := providers.NewHashingProvider(64)
	ixr := index.NewIndexer(p, 0)
	idx := index.New(64)
	s := NewSearcher(idx, ixr)

	hits, err := s.Search(context.Background(), "anything", 3, index.Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Search(context.Background(), "anything", 0, index.Filter{})
	require.ErrorIs(t, err, util.ErrInvalidTopK)

	chunk := models.Chunk{ChunkID: util.ChunkID("d", 0, 0), DocumentID: "d", Text: "Top section text.", Kind: models.ChunkKindSlice, Strategy: models.StrategyNative}
	b, err := ixr.Build(context.Background(), "d", []models.Chunk{chunk}, idx.Dimension())
	require.NoError(t, err)
	require.NoError(t, idx.Restore("d", idx.NextGeneration(), b.Entries))

	hits, err = s.Search(context.Background(), "Top", 3, index.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Greater(t, hits[0].Score, 0.5)
}
