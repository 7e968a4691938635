// Package embed provides text embedding for semantic indexing. The
// embedder is an optional collaborator: when it is unavailable the
// rest of the system degrades to keyword-only retrieval instead of
// failing.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Aman-CERP/knowbase/internal/config"
)

// ErrUnavailable indicates the embedding provider cannot serve right
// now. Callers fall back to keyword-only behavior and surface the
// degradation in result metadata.
var ErrUnavailable = errors.New("embed: provider unavailable")

// Embedder generates dense vectors for text.
type Embedder interface {
	// Embed generates one embedding. Returns ErrUnavailable (possibly
	// wrapped) when the provider cannot serve.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName identifies the model for provenance.
	ModelName() string

	// Available reports whether the provider can serve right now.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// NewFromConfig builds the embedder named by the configuration.
// Provider "none" yields a nil embedder; callers treat nil as
// keyword-only mode.
func NewFromConfig(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case "static":
		return NewStaticEmbedder(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			Host:    cfg.OllamaHost,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.Std(),
		}), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// normalizeVector scales v to unit length in place. Zero vectors pass
// through unchanged.
func normalizeVector(v []float32) []float32 {
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
