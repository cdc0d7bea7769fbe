package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniprag/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SNIPRAG_CONFIG", "")
	t.Setenv("SNIPRAG_STRATEGY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.StrategyNative, cfg.ParsedStrategy())
	assert.Equal(t, 500, cfg.ChunkMaxChars)
	assert.Equal(t, 32, cfg.PageCacheSize)
	assert.Equal(t, 4, cfg.ExtractWorkers)
	assert.Equal(t, 20, cfg.DefaultPadding)
	assert.Equal(t, 150.0, cfg.RenderDPI)
	assert.Equal(t, []string{"eng"}, cfg.Languages())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniprag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: ocr\nchunk_max_chars: 300\nocr_languages: eng+deu\nsnapshot_backend: sqlite\n"), 0o644))
	t.Setenv("SNIPRAG_CONFIG", path)
	t.Setenv("SNIPRAG_CHUNK_MAX_CHARS", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.StrategyOCR, cfg.ParsedStrategy())
	assert.Equal(t, 120, cfg.ChunkMaxChars, "env wins over file")
	assert.Equal(t, "sqlite", cfg.SnapshotBackend)
	assert.Equal(t, []string{"eng", "deu"}, cfg.Languages())
	assert.Equal(t, 32, cfg.EmbedBatchSize, "untouched keys keep defaults")
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("SNIPRAG_CONFIG", "")
	t.Setenv("SNIPRAG_STRATEGY", "vision")
	_, err := Load()
	require.ErrorContains(t, err, "unknown strategy")
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: [unclosed"), 0o644))
	t.Setenv("SNIPRAG_CONFIG", path)
	_, err := Load()
	require.ErrorContains(t, err, "parse config file")
}

func TestGetenvIntFallback(t *testing.T) {
	t.Setenv("SNIPRAG_X", "not-a-number")
	assert.Equal(t, 7, getenvInt("SNIPRAG_X", 7))
}
