package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// StaticEmbedder produces deterministic hash-based embeddings with no
// external dependency. Quality is far below a learned model, but the
// vectors are stable across runs, which keeps semantic indexing
// reproducible and always available.
type StaticEmbedder struct {
	dims int
}

const (
	// DefaultStaticDimensions is the vector width when none is configured.
	DefaultStaticDimensions = 256

	tokenWeight = 0.7
	ngramWeight = 0.3
)

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the given width.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed hashes word tokens and character trigrams into a fixed-width
// vector, then normalizes. Identical text always yields an identical
// vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	if strings.TrimSpace(text) == "" {
		return vec, nil
	}

	for _, tok := range tokenize(text) {
		vec[e.bucket(tok)] += tokenWeight
		for _, ng := range trigrams(tok) {
			vec[e.bucket(ng)] += ngramWeight
		}
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) ModelName() string { return "static" }

// Available always reports true: there is no external dependency.
func (e *StaticEmbedder) Available(context.Context) bool { return true }

func (e *StaticEmbedder) Close() error { return nil }

func (e *StaticEmbedder) bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

// tokenize lowercases and splits on non-alphanumeric runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams yields the character 3-grams of a token.
func trigrams(tok string) []string {
	runes := []rune(tok)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}
