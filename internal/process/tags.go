package process

import (
	"sort"
	"strings"
	"unicode"
)

// DeriveTags matches the domain vocabulary against the text,
// case-insensitively on word boundaries. The result is sorted and
// deduplicated so tag sets compare stably.
func DeriveTags(text string, vocabulary []string) []string {
	words := make(map[string]bool)
	for _, w := range splitWords(text) {
		words[w] = true
	}

	var tags []string
	for _, term := range vocabulary {
		if matchTerm(words, term) {
			tags = append(tags, strings.ToLower(term))
		}
	}
	sort.Strings(tags)
	return tags
}

// matchTerm checks a vocabulary term against the word set. Multi-word
// terms match when every word is present.
func matchTerm(words map[string]bool, term string) bool {
	parts := splitWords(term)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !words[p] {
			return false
		}
	}
	return true
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// jaccard computes set similarity of two sorted tag slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	for _, t := range b {
		if set[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// sharedTags counts tags present in both sorted slices.
func sharedTags(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}
