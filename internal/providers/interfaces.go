package providers

import "context"

// Purpose tells a provider whether it embeds stored chunks or a search
// query. Asymmetric models prefix the two differently.
type Purpose string

const (
	PurposeDocument Purpose = "document"
	PurposeQuery    Purpose = "query"
)

type ProviderInfo struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Account string `json:"account,omitempty"`
}

type EmbedRequest struct {
	Purpose   Purpose  `json:"purpose"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// EmbeddingProvider returns one vector per input, in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
