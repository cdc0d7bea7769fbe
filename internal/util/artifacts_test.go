package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONLinesAtomic(t *testing.T) {
	type row struct {
		ChunkID string `json:"chunk_id"`
		Page    int    `json:"page"`
	}
	path := filepath.Join(t.TempDir(), "nested", "chunks.jsonl")
	require.NoError(t, WriteJSONLinesAtomic(path, []row{{"a:0000:0000", 0}, {"a:0001:0000", 1}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{`{"chunk_id":"a:0000:0000","page":0}`, `{"chunk_id":"a:0001:0000","page":1}`}, lines)
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "document.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"chunks": 3}))
	require.NoError(t, WriteFileAtomic(path, []byte("replaced")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))
}

func TestWriteJSONAtomicEncodeErrorKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.json")
	require.NoError(t, WriteFileAtomic(path, []byte("old")))

	err := WriteJSONAtomic(path, map[string]any{"bad": func() {}})
	require.Error(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}
