// Package preflight validates the environment before a pipeline run:
// disk space, permissions, descriptor limits, source reachability, and
// embedding availability.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/source"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	embedder embed.Embedder // may be nil
	adapters []source.Adapter
	verbose  bool
	output   io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder sets the embedder whose availability is checked.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithAdapters sets the source adapters whose reachability is checked.
func WithAdapters(adapters []source.Adapter) Option {
	return func(c *Checker) { c.adapters = adapters }
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the store directory.
func (c *Checker) RunAll(ctx context.Context, storeDir string) []CheckResult {
	results := []CheckResult{
		c.CheckDiskSpace(storeDir),
		c.CheckWritePermissions(storeDir),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
	}
	results = append(results, c.CheckSources(ctx)...)
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus summarizes the results as ready, ready_with_warnings,
// or failed.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "knowbase system check")
	_, _ = fmt.Fprintln(c.output, "=====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions checks if the store directory is writable.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create store directory: %v", err)
		return result
	}

	testFile := filepath.Join(dir, ".knowbase-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder reports whether semantic search will be available.
// Never critical: the index degrades to keyword-only.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	if c.embedder == nil {
		result.Status = StatusWarn
		result.Message = "no embedding provider configured (keyword-only search)"
		return result
	}
	if !c.embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unavailable (search degrades to keyword-only)",
			c.embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%d dimensions)",
		c.embedder.ModelName(), c.embedder.Dimensions())
	return result
}

// CheckSources verifies each configured repository is reachable.
// Failures are warnings: the pipeline skips unreachable repositories.
func (c *Checker) CheckSources(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(c.adapters))
	for _, a := range c.adapters {
		result := CheckResult{
			Name:     "source:" + a.Repo(),
			Required: false,
		}
		if _, err := a.Revision(ctx); err != nil {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("unreachable: %v", err)
		} else {
			result.Status = StatusPass
			result.Message = "reachable"
		}
		results = append(results, result)
	}
	return results
}
