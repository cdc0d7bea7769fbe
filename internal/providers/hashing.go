package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultHashingDim = 384

// HashingProvider embeds text by feature hashing its lower-cased word tokens
// into a fixed number of buckets. Output is deterministic and L2-normalized,
// so texts sharing words score a positive cosine similarity.
type HashingProvider struct {
	dim int
}

func NewHashingProvider(dim int) *HashingProvider {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &HashingProvider{dim: dim}
}

func (h *HashingProvider) Dimension() int { return h.dim }

func (h *HashingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "hashing", Model: fmt.Sprintf("fnv-bow-%d", h.dim), Account: "local"}
	if err := ctx.Err(); err != nil {
		return nil, info, err
	}
	dim := req.Dimension
	if dim <= 0 {
		dim = h.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, hashVector(input, dim))
	}
	return vectors, info, nil
}

// Tokenize splits text into lower-cased letter/digit tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		vec[f.Sum32()%uint32(dim)]++
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
