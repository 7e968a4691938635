package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/verify"
	"github.com/Aman-CERP/knowbase/pkg/version"
)

// Server exposes the query surface and the coverage audit as MCP tools
// over stdio.
type Server struct {
	mcp      *mcp.Server
	service  *query.Service
	verifier *verify.Verifier
	adapters []source.Adapter
	embedder embed.Embedder // may be nil, reported as unavailable
	logger   *slog.Logger
}

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Mode  string `json:"mode,omitempty" jsonschema:"search mode: keyword, semantic, or hybrid (default hybrid)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// SearchResultOutput is one ranked concept.
type SearchResultOutput struct {
	ID          string   `json:"id" jsonschema:"concept id, usable with get_entity"`
	Name        string   `json:"name" jsonschema:"concept name"`
	Description string   `json:"description,omitempty" jsonschema:"short description"`
	Repo        string   `json:"repo" jsonschema:"source repository"`
	Path        string   `json:"path,omitempty" jsonschema:"source file path"`
	Type        string   `json:"type" jsonschema:"concept type"`
	Tags        []string `json:"tags,omitempty" jsonschema:"vocabulary tags"`
	Score       float64  `json:"score" jsonschema:"relevance score, best result is 1.0"`
	InBoth      bool     `json:"in_both,omitempty" jsonschema:"true when both keyword and semantic ranking agreed"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results" jsonschema:"ranked results"`
	Mode     string               `json:"mode" jsonschema:"mode actually used"`
	Degraded bool                 `json:"degraded,omitempty" jsonschema:"true when semantic ranking was unavailable"`
	Reason   string               `json:"reason,omitempty" jsonschema:"why the search degraded"`
}

// GetEntityInput is the input schema for the get_entity tool.
type GetEntityInput struct {
	ID string `json:"id" jsonschema:"entity id (concept, relationship, principle, or pattern)"`
}

// GetEntityOutput wraps the resolved entity.
type GetEntityOutput struct {
	Entity *query.Entity `json:"entity" jsonschema:"the resolved entity with touching edges for concepts"`
}

// ListConceptsInput is the input schema for the list_concepts tool.
type ListConceptsInput struct {
	Repo string `json:"repo,omitempty" jsonschema:"filter by source repository"`
	Type string `json:"type,omitempty" jsonschema:"filter by concept type: spec, implementation, pattern, tool, other"`
	Tag  string `json:"tag,omitempty" jsonschema:"filter by vocabulary tag"`
}

// ListConceptsOutput is the output schema for the list_concepts tool.
type ListConceptsOutput struct {
	Concepts []*kb.Concept `json:"concepts" jsonschema:"matching concepts ordered by id"`
	Count    int           `json:"count" jsonschema:"number of matches"`
}

// StatsInput is the (empty) input schema for the kb_stats tool.
type StatsInput struct{}

// EmbeddingInfo reports the semantic search capability so clients can
// adjust their strategy.
type EmbeddingInfo struct {
	Provider   string `json:"provider" jsonschema:"embedding provider: static, ollama, or none"`
	Model      string `json:"model,omitempty" jsonschema:"model identifier"`
	Dimensions int    `json:"dimensions,omitempty" jsonschema:"embedding width"`
	Status     string `json:"status" jsonschema:"ready or unavailable"`
}

// StatsOutput is the output schema for the kb_stats tool.
type StatsOutput struct {
	Server     string             `json:"server" jsonschema:"server name and version"`
	Stats      *query.StatsReport `json:"stats" jsonschema:"entity counts and per-repository provenance"`
	Embeddings EmbeddingInfo      `json:"embeddings" jsonschema:"semantic search capability"`
}

// CoverageInput is the input schema for the coverage_report tool.
type CoverageInput struct {
	Repo string `json:"repo,omitempty" jsonschema:"audit a single repository; empty audits all configured repositories"`
}

// CoverageOutput is the output schema for the coverage_report tool.
type CoverageOutput struct {
	Reports []*kb.CoverageReport `json:"reports" jsonschema:"per-repository coverage reports"`
}

// NewServer creates the MCP server and registers its tools. adapters
// back the coverage_report tool and may be empty.
func NewServer(svc *query.Service, verifier *verify.Verifier, adapters []source.Adapter, embedder embed.Embedder, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("query service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service:  svc,
		verifier: verifier,
		adapters: adapters,
		embedder: embedder,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "knowbase",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search concepts extracted from all indexed repositories. Hybrid mode fuses keyword and semantic ranking; results carry stable ids usable with get_entity.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_entity",
		Description: "Fetch any entity by id: a concept (with its relationships), a relationship, a cross-repository principle, or a pattern.",
	}, s.getEntityHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_concepts",
		Description: "List concepts filtered by repository, type, or tag. Useful for browsing what the knowledge base knows before searching.",
	}, s.listConceptsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_stats",
		Description: "Entity counts, per-repository provenance, and whether semantic search is available.",
	}, s.statsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "coverage_report",
		Description: "Audit stored records against the source repositories: coverage percentage, revision freshness, and an ok/partial/stale/missing verdict per repository.",
	}, s.coverageHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 5))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required and must be non-empty")
	}

	mode, err := search.ParseMode(input.Mode)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	start := time.Now()
	results, meta, err := s.service.Search(ctx, input.Query, mode, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Results:  make([]SearchResultOutput, 0, len(results)),
		Mode:     string(meta.Mode),
		Degraded: meta.Degraded,
		Reason:   meta.Reason,
	}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			ID:          r.Concept.ID,
			Name:        r.Concept.Name,
			Description: r.Concept.Description,
			Repo:        r.Concept.SourceRepo,
			Path:        r.Concept.SourcePath,
			Type:        string(r.Concept.Type),
			Tags:        r.Concept.Tags,
			Score:       r.Score,
			InBoth:      r.InBoth,
		})
	}

	s.logger.Info("search_knowledge completed",
		slog.String("query", input.Query),
		slog.String("mode", string(meta.Mode)),
		slog.Int("results", len(out.Results)),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

func (s *Server) getEntityHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetEntityInput) (
	*mcp.CallToolResult,
	GetEntityOutput,
	error,
) {
	if input.ID == "" {
		return nil, GetEntityOutput{}, NewInvalidParamsError("id is required")
	}
	e, err := s.service.GetByID(ctx, input.ID)
	if err != nil {
		return nil, GetEntityOutput{}, MapError(err)
	}
	return nil, GetEntityOutput{Entity: e}, nil
}

func (s *Server) listConceptsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListConceptsInput) (
	*mcp.CallToolResult,
	ListConceptsOutput,
	error,
) {
	concepts, err := s.service.List(ctx, query.ListFilter{
		Repo: input.Repo,
		Type: kb.ConceptType(input.Type),
		Tag:  input.Tag,
	})
	if err != nil {
		return nil, ListConceptsOutput{}, MapError(err)
	}
	return nil, ListConceptsOutput{Concepts: concepts, Count: len(concepts)}, nil
}

func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	report, err := s.service.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, StatsOutput{
		Server:     fmt.Sprintf("knowbase %s", version.Version),
		Stats:      report,
		Embeddings: s.embeddingInfo(ctx),
	}, nil
}

func (s *Server) coverageHandler(ctx context.Context, _ *mcp.CallToolRequest, input CoverageInput) (
	*mcp.CallToolResult,
	CoverageOutput,
	error,
) {
	if s.verifier == nil || len(s.adapters) == 0 {
		return nil, CoverageOutput{}, NewInvalidParamsError("no source repositories configured for verification")
	}

	adapters := s.adapters
	if input.Repo != "" {
		adapters = nil
		for _, a := range s.adapters {
			if a.Repo() == input.Repo {
				adapters = []source.Adapter{a}
				break
			}
		}
		if adapters == nil {
			return nil, CoverageOutput{}, NewInvalidParamsError(
				fmt.Sprintf("unknown repository %q", input.Repo))
		}
	}

	reports, err := s.verifier.VerifyAll(ctx, adapters)
	if err != nil {
		return nil, CoverageOutput{}, MapError(err)
	}
	return nil, CoverageOutput{Reports: reports}, nil
}

func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	if s.embedder == nil {
		return EmbeddingInfo{Provider: "none", Status: "unavailable"}
	}
	info := EmbeddingInfo{
		Provider:   providerName(s.embedder.ModelName()),
		Model:      s.embedder.ModelName(),
		Dimensions: s.embedder.Dimensions(),
		Status:     "unavailable",
	}
	if s.embedder.Available(ctx) {
		info.Status = "ready"
	}
	return info
}

func providerName(model string) string {
	if strings.HasPrefix(model, "static") {
		return "static"
	}
	return "ollama"
}

// Serve runs the server until the context is canceled. Only the stdio
// transport is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
