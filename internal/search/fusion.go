// Package search ranks concepts for a query in keyword, semantic, or
// hybrid mode. Hybrid fuses the two rankings with weighted reciprocal
// rank fusion and deduplicates by concept id, keeping the
// higher-ranked occurrence.
package search

import (
	"sort"
)

// rankedID is one entry of an input ranking.
type rankedID struct {
	ID    string
	Score float64
}

// fusionConfig tunes reciprocal rank fusion.
type fusionConfig struct {
	K              int
	KeywordWeight  float64
	SemanticWeight float64
}

// fused is one output of rank fusion.
type fused struct {
	ID       string
	RRFScore float64
	// InBoth marks ids present in both rankings, used as a tie-break.
	InBoth       bool
	KeywordRank  int
	SemanticRank int
}

// fuseRankings merges keyword and semantic rankings with weighted RRF:
// score(d) = w_k/(K + rank_k(d)) + w_s/(K + rank_s(d)). A document
// missing from one ranking is treated as ranked just past its end.
// Ties break by presence in both lists, then keyword rank, then id.
func fuseRankings(keyword, semantic []rankedID, cfg fusionConfig) []fused {
	if cfg.K <= 0 {
		cfg.K = 60
	}
	if cfg.KeywordWeight == 0 && cfg.SemanticWeight == 0 {
		cfg.KeywordWeight, cfg.SemanticWeight = 0.5, 0.5
	}

	kwRank := make(map[string]int, len(keyword))
	for i, r := range keyword {
		if _, dup := kwRank[r.ID]; !dup {
			kwRank[r.ID] = i + 1
		}
	}
	semRank := make(map[string]int, len(semantic))
	for i, r := range semantic {
		if _, dup := semRank[r.ID]; !dup {
			semRank[r.ID] = i + 1
		}
	}

	missingKW := len(keyword) + 1
	missingSem := len(semantic) + 1

	ids := make(map[string]bool, len(kwRank)+len(semRank))
	for id := range kwRank {
		ids[id] = true
	}
	for id := range semRank {
		ids[id] = true
	}

	out := make([]fused, 0, len(ids))
	for id := range ids {
		kr, inKW := kwRank[id]
		if !inKW {
			kr = missingKW
		}
		sr, inSem := semRank[id]
		if !inSem {
			sr = missingSem
		}
		out = append(out, fused{
			ID:           id,
			RRFScore:     cfg.KeywordWeight/float64(cfg.K+kr) + cfg.SemanticWeight/float64(cfg.K+sr),
			InBoth:       inKW && inSem,
			KeywordRank:  kr,
			SemanticRank: sr,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.InBoth != b.InBoth {
			return a.InBoth
		}
		if a.KeywordRank != b.KeywordRank {
			return a.KeywordRank < b.KeywordRank
		}
		return a.ID < b.ID
	})
	return out
}

// normalizeScores scales fused scores so the best is 1.0.
func normalizeScores(results []fused) map[string]float64 {
	out := make(map[string]float64, len(results))
	if len(results) == 0 {
		return out
	}
	max := results[0].RRFScore
	if max == 0 {
		return out
	}
	for _, r := range results {
		out[r.ID] = r.RRFScore / max
	}
	return out
}
