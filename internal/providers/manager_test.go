package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniprag/internal/config"
)

func TestNewManagerUsesFirstProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.EmbedProviders = "mock|ollama:nomic"
	m, err := NewManager(cfg)
	require.NoError(t, err)

	_, ok := m.FirstEmbedProvider().(*HashingProvider)
	assert.True(t, ok, "mock is an alias of the hashing provider")
	assert.Equal(t, "mock", m.FirstEmbedRef().Name)
	require.Len(t, m.Unused(), 1)
	assert.Equal(t, "ollama:nomic", m.Unused()[0].String())
}

func TestNewManagerRejectsUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.EmbedProviders = "groq"
	_, err := NewManager(cfg)
	require.ErrorContains(t, err, "unsupported embedding provider")
}
