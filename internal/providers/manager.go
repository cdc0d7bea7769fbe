package providers

import (
	"fmt"

	"sniprag/internal/config"
)

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager builds every configured provider up front so a typo in the list
// fails at startup rather than at the first ingestion.
type Manager struct {
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: p})
	}
	return m, nil
}

// FirstEmbedProvider is the provider an index is built with. Vectors from
// different providers live in different spaces and are never mixed.
func (m *Manager) FirstEmbedProvider() EmbeddingProvider {
	return m.embedProviders[0].Provider
}

func (m *Manager) FirstEmbedRef() ProviderRef {
	return m.embedProviders[0].Ref
}

// Unused lists configured providers after the first one.
func (m *Manager) Unused() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for _, p := range m.embedProviders[1:] {
		out = append(out, p.Ref)
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (EmbeddingProvider, error) {
	switch ref.Name {
	case "hashing", "mock":
		return NewHashingProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ref.Name)
	}
}
