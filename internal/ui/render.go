package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/pipeline"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/search"
)

// Renderer writes human-readable views of query results and reports.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a Renderer. Styled output is decided per the
// writer and color preference.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{
		out:    out,
		styles: GetStyles(!UseStyles(out, noColor)),
	}
}

func (r *Renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// SearchResults renders a ranked result list.
func (r *Renderer) SearchResults(queryStr string, results []search.Result, meta search.Meta) {
	r.printf("%s\n", r.styles.Header.Render(
		fmt.Sprintf("%d results for %q (%s)", len(results), queryStr, meta.Mode)))
	if meta.Degraded {
		r.printf("%s\n", r.styles.Warning.Render("degraded to keyword-only: "+meta.Reason))
	}
	r.printf("\n")

	for i, res := range results {
		c := res.Concept
		r.printf("%2d. %s  %s\n", i+1,
			r.styles.Name.Render(c.Name),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.Score)))
		r.printf("    %s\n", r.styles.Label.Render(
			fmt.Sprintf("%s · %s · %s", c.SourceRepo, c.Type, c.SourcePath)))
		if c.Description != "" {
			r.printf("    %s\n", c.Description)
		}
		if len(c.Tags) > 0 {
			r.printf("    %s\n", r.styles.Dim.Render("tags: "+strings.Join(c.Tags, ", ")))
		}
		r.printf("    %s\n", r.styles.Dim.Render("id: "+c.ID))
	}
}

// Concepts renders a concept listing.
func (r *Renderer) Concepts(concepts []*kb.Concept) {
	r.printf("%s\n\n", r.styles.Header.Render(fmt.Sprintf("%d concepts", len(concepts))))
	for _, c := range concepts {
		r.printf("%s  %s\n", r.styles.Name.Render(c.Name),
			r.styles.Label.Render(fmt.Sprintf("%s · %s", c.SourceRepo, c.Type)))
		r.printf("  %s\n", r.styles.Dim.Render(c.ID))
	}
}

// Entity renders one resolved entity.
func (r *Renderer) Entity(e *query.Entity) {
	switch e.Kind {
	case query.KindConcept:
		c := e.Concept
		r.printf("%s\n", r.styles.Header.Render(c.Name))
		r.printf("%s\n", r.styles.Label.Render(
			fmt.Sprintf("concept · %s · %s · %s", c.SourceRepo, c.Type, c.SourcePath)))
		if c.Description != "" {
			r.printf("\n%s\n", c.Description)
		}
		if len(c.Tags) > 0 {
			r.printf("\n%s\n", r.styles.Dim.Render("tags: "+strings.Join(c.Tags, ", ")))
		}
		if len(e.Related) > 0 {
			r.printf("\n%s\n", r.styles.Header.Render("relationships"))
			for _, rel := range e.Related {
				r.printf("  %s %s %s  %s\n",
					r.styles.Dim.Render(rel.FromConceptID),
					rel.Kind,
					r.styles.Dim.Render(rel.ToConceptID),
					r.styles.Score.Render(fmt.Sprintf("%.2f", rel.Weight)))
			}
		}
	case query.KindRelationship:
		rel := e.Relationship
		r.printf("%s\n", r.styles.Header.Render(string(rel.Kind)))
		r.printf("  from: %s\n  to:   %s\n  weight: %.2f\n",
			rel.FromConceptID, rel.ToConceptID, rel.Weight)
	case query.KindPrinciple:
		p := e.Principle
		r.printf("%s\n", r.styles.Header.Render("principle"))
		r.printf("%s\n", p.Statement)
		r.printf("%s\n", r.styles.Label.Render(
			fmt.Sprintf("supported by %d concepts across %d repositories",
				len(p.SupportingConcepts), p.RepoCount)))
	case query.KindPattern:
		p := e.Pattern
		r.printf("%s\n", r.styles.Header.Render("pattern"))
		r.printf("%s\n", p.Statement)
		r.printf("%s\n", r.styles.Label.Render(
			fmt.Sprintf("observed across %d repositories", p.RepoCount)))
	}
}

// Stats renders the stats report.
func (r *Renderer) Stats(report *query.StatsReport) {
	r.printf("%s\n\n", r.styles.Header.Render("knowledge base"))
	r.printf("  concepts       %d\n", report.Concepts)
	r.printf("  relationships  %d\n", report.Relationships)
	r.printf("  principles     %d\n", report.Principles)
	r.printf("  patterns       %d\n", report.Patterns)

	if len(report.Repositories) > 0 {
		r.printf("\n%s\n", r.styles.Header.Render("repositories"))
		for _, p := range report.Repositories {
			r.printf("  %s  %s\n",
				r.styles.Name.Render(p.SourceRepo),
				r.styles.Label.Render(fmt.Sprintf("%s · %d records · %s",
					shortRevision(p.Revision), p.RecordCountStored, p.Status)))
		}
	}
}

// RepoSummaries renders the per-repository rollup under the stats.
func (r *Renderer) RepoSummaries(sums []index.RepoSummary) {
	if len(sums) == 0 {
		return
	}
	r.printf("\n%s\n", r.styles.Header.Render("summaries"))
	for _, s := range sums {
		r.printf("  %s  %s\n",
			r.styles.Name.Render(s.Repo),
			r.styles.Label.Render(fmt.Sprintf("%d concepts", s.Concepts)))
		if len(s.TopTags) > 0 {
			r.printf("    %s\n", r.styles.Dim.Render("tags: "+strings.Join(s.TopTags, ", ")))
		}
	}
}

// Coverage renders coverage reports with a status verdict per repo.
func (r *Renderer) Coverage(reports []*kb.CoverageReport) {
	r.printf("%s\n\n", r.styles.Header.Render("coverage"))
	for _, rep := range reports {
		r.printf("  %s  %5.1f%%  %s\n",
			r.styles.Name.Render(rep.Repo),
			rep.CoveragePct,
			r.statusStyle(rep.Status).Render(string(rep.Status)))
	}
}

// RunReport renders one pipeline run summary.
func (r *Renderer) RunReport(report *pipeline.Report) {
	r.printf("%s\n\n", r.styles.Header.Render("run "+report.RunID))
	for _, run := range report.Repos {
		switch {
		case run.Errors > 0 && run.Records == 0:
			r.printf("  %s  %s\n", r.styles.Name.Render(run.Repo),
				r.styles.Error.Render("failed"))
		case run.Unchanged:
			r.printf("  %s  %s\n", r.styles.Name.Render(run.Repo),
				r.styles.Dim.Render("unchanged"))
		default:
			r.printf("  %s  %s\n", r.styles.Name.Render(run.Repo),
				r.styles.Label.Render(fmt.Sprintf("%d records, %d concepts, %d edges, %d skips",
					run.Records, run.Concepts, run.Edges, run.Skips)))
		}
	}
	r.printf("\n  %s\n", r.styles.Label.Render(
		fmt.Sprintf("%d principles, %d patterns, %s",
			report.Principles, report.Patterns, report.Duration.Round(10*time.Millisecond))))
}

func (r *Renderer) statusStyle(status kb.ProvenanceStatus) lipgloss.Style {
	switch status {
	case kb.ProvenanceOK:
		return r.styles.Success
	case kb.ProvenancePartial, kb.ProvenanceStale:
		return r.styles.Warning
	default:
		return r.styles.Error
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
