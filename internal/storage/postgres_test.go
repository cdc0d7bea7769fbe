package storage

import (
	"context"
	"os"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkArgsUsePgvector(t *testing.T) {
	snap := sampleSnapshot("pg-args", 3, "alpha")
	e := snap.Entries[0]
	args := chunkArgs("pg-args", 3, e)
	require.Len(t, args, 13)
	assert.Equal(t, e.ChunkID, args[0])
	assert.Equal(t, int64(3), args[2])

	vec, ok := args[12].(pgvector.Vector)
	require.True(t, ok, "embedding is bound as pgvector.Vector")
	wire, err := vec.Value()
	require.NoError(t, err)
	var back pgvector.Vector
	require.NoError(t, back.Scan(wire))
	assert.Equal(t, e.Vector, back.Slice())
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("SNIPRAG_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("SNIPRAG_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	st, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	docID := "pg-roundtrip"
	defer func() { _ = st.DeleteDocument(ctx, docID) }()

	require.NoError(t, st.SaveDocument(ctx, sampleSnapshot(docID, 1, "one", "two")))
	in := sampleSnapshot(docID, 2, "alpha", "beta")
	require.NoError(t, st.SaveDocument(ctx, in))

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	var found *DocumentSnapshot
	for i := range all {
		if all[i].Document.DocumentID == docID {
			found = &all[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, uint64(2), found.Generation)
	require.Equal(t, in.Entries, found.Entries)
	require.Equal(t, in.Document.Pages, found.Document.Pages)
}
