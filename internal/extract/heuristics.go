package extract

import (
	"path"
	"strings"
)

// ExtractTitle finds a human title for the file: the first markdown
// heading, then a "title:" frontmatter line within the first ten lines,
// then the filename stem.
func ExtractTitle(text, filePath string) string {
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}

	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	for _, line := range lines[:limit] {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "title:") {
			if t := strings.TrimSpace(trimmed[len("title:"):]); t != "" {
				return strings.Trim(t, `"'`)
			}
		}
	}

	base := path.Base(filePath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return stem
}

// ExtractSummary takes the first few prose lines: headings, code fences,
// and fenced content are skipped. The result is capped at maxChars.
func ExtractSummary(text string, maxChars int) string {
	var picked []string
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		picked = append(picked, trimmed)
		if len(picked) == 3 {
			break
		}
	}

	summary := strings.Join(picked, " ")
	return capChars(summary, maxChars)
}

// capChars truncates at a rune boundary, preferring a word boundary.
func capChars(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := string(runes[:maxChars])
	if i := strings.LastIndex(cut, " "); i > maxChars/2 {
		cut = cut[:i]
	}
	return cut
}
