package extract

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// goDocSummary parses Go source and builds a summary from its leading
// doc comments. Non-Go files and parse failures fall back to the prose
// heuristic by returning "".
func goDocSummary(ctx context.Context, filePath string, src []byte, maxChars int) string {
	if path.Ext(filePath) != ".go" {
		return ""
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return ""
	}
	defer tree.Close()

	var lines []string
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node == nil || node.Type() != "comment" {
			continue
		}
		text := cleanComment(node.Content(src))
		if text == "" || isDirective(text) {
			continue
		}
		lines = append(lines, text)
		if len(lines) == 5 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return capChars(strings.Join(lines, " "), maxChars)
}

// cleanComment strips comment markers and surrounding whitespace.
func cleanComment(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return strings.TrimSpace(strings.TrimPrefix(raw, "//"))
	}
	raw = strings.TrimPrefix(raw, "/*")
	raw = strings.TrimSuffix(raw, "*/")
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// isDirective filters build tags and generate markers out of summaries.
func isDirective(text string) bool {
	return strings.HasPrefix(text, "go:") ||
		strings.HasPrefix(text, "+build") ||
		strings.HasPrefix(text, "nolint")
}
