package index

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// BuildInfo reports one rebuild.
type BuildInfo struct {
	Indexed  int    `json:"indexed"`
	Vectors  int    `json:"vectors"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Indexer rebuilds the retrieval structures from a store snapshot.
type Indexer struct {
	keyword  *KeywordIndex
	vector   *VectorIndex
	embedder embed.Embedder
	logger   *slog.Logger
}

// New creates an Indexer. A nil embedder means keyword-only operation.
func New(keyword *KeywordIndex, vector *VectorIndex, embedder embed.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{keyword: keyword, vector: vector, embedder: embedder, logger: logger}
}

// Keyword returns the keyword index for search.
func (ix *Indexer) Keyword() *KeywordIndex { return ix.keyword }

// Vector returns the vector index for search, nil in keyword-only mode.
func (ix *Indexer) Vector() *VectorIndex { return ix.vector }

// Rebuild reindexes every concept in the snapshot. The keyword side
// always builds; the vector side builds only when an embedder is
// present and available, otherwise the result is marked degraded and
// search falls back to keyword-only.
func (ix *Indexer) Rebuild(ctx context.Context, snap *store.Snapshot) (*BuildInfo, error) {
	concepts := snap.Concepts()
	info := &BuildInfo{Indexed: len(concepts)}

	if err := ix.keyword.Clear(ctx); err != nil {
		return nil, err
	}
	docs := make(map[string]string, len(concepts))
	for _, c := range concepts {
		docs[c.ID] = conceptText(c)
	}
	if err := ix.keyword.Index(ctx, docs); err != nil {
		return nil, err
	}

	switch {
	case ix.embedder == nil || ix.vector == nil:
		info.Degraded = true
		info.Reason = "no embedding provider configured"
	case !ix.embedder.Available(ctx):
		info.Degraded = true
		info.Reason = "embedding provider unavailable"
	default:
		n, err := ix.rebuildVectors(ctx, concepts)
		if err != nil {
			// Vector failure degrades, it never fails the build.
			info.Degraded = true
			info.Reason = err.Error()
		} else {
			info.Vectors = n
		}
	}

	ix.logger.Info("index rebuilt",
		slog.Int("concepts", info.Indexed),
		slog.Int("vectors", info.Vectors),
		slog.Bool("degraded", info.Degraded))
	return info, nil
}

func (ix *Indexer) rebuildVectors(ctx context.Context, concepts []*kb.Concept) (int, error) {
	ix.vector.Clear()
	if len(concepts) == 0 {
		return 0, nil
	}

	ids := make([]string, len(concepts))
	texts := make([]string, len(concepts))
	for i, c := range concepts {
		ids[i] = c.ID
		texts[i] = conceptText(c)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if err := ix.vector.Add(ids, vectors); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// conceptText is the searchable text for one concept: name,
// description, and tags.
func conceptText(c *kb.Concept) string {
	parts := []string{c.Name, c.Description}
	parts = append(parts, c.Tags...)
	return strings.Join(parts, " ")
}

// RepoSummary is the per-repository dashboard rollup.
type RepoSummary struct {
	Repo     string         `json:"repo"`
	Concepts int            `json:"concepts"`
	ByType   map[string]int `json:"by_type"`
	TopTags  []string       `json:"top_tags,omitempty"`
}

// Summaries computes per-repository concept counts, type breakdowns,
// and most-frequent tags from a snapshot.
func Summaries(snap *store.Snapshot) []RepoSummary {
	type agg struct {
		count  int
		byType map[string]int
		tags   map[string]int
	}
	repos := make(map[string]*agg)
	for _, c := range snap.Concepts() {
		a, ok := repos[c.SourceRepo]
		if !ok {
			a = &agg{byType: map[string]int{}, tags: map[string]int{}}
			repos[c.SourceRepo] = a
		}
		a.count++
		a.byType[string(c.Type)]++
		for _, t := range c.Tags {
			a.tags[t]++
		}
	}

	out := make([]RepoSummary, 0, len(repos))
	for repo, a := range repos {
		out = append(out, RepoSummary{
			Repo:     repo,
			Concepts: a.count,
			ByType:   a.byType,
			TopTags:  topTags(a.tags, 5),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Repo < out[j].Repo })
	return out
}

// topTags returns the n most frequent tags, ties broken alphabetically.
func topTags(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
