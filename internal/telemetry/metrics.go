// Package telemetry collects local query metrics for tuning search.
// All data stays on disk next to the store; nothing is reported
// externally.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one recorded search.
type QueryEvent struct {
	Query       string
	Mode        string
	ResultCount int
	Degraded    bool
	Latency     time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest-first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms splits a query into lowercased terms of length >= 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	ModeCounts          map[string]int64        `json:"mode_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries with no results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config tunes the collector.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	// FlushInterval is how often aggregates are flushed to the store.
	// Zero disables auto-flush.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       60 * time.Second,
	}
}

// QueryMetrics collects search telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	modes         map[string]int64
	latencies     map[LatencyBucket]int64
	topTerms      *lru.Cache[string, int64]
	zeroResults   *CircularBuffer[string]
	totalQueries  int64
	zeroResCount  int64
	degradedCount int64
	startTime     time.Time

	store   *MetricsStore // nil keeps metrics in memory only
	config  Config
	stopCh  chan struct{}
	stopped sync.Once
}

// NewQueryMetrics creates a collector. A nil store keeps metrics in
// memory only.
func NewQueryMetrics(store *MetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector with explicit config.
func NewQueryMetricsWithConfig(store *MetricsStore, cfg Config) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	m := &QueryMetrics{
		modes:       make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		topTerms:    terms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		startTime:   time.Now().UTC(),
		store:       store,
		config:      cfg,
		stopCh:      make(chan struct{}),
	}

	if store != nil && cfg.FlushInterval > 0 {
		go m.flushLoop()
	}
	return m
}

// Record adds one query event to the aggregates.
func (m *QueryMetrics) Record(e QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.modes[e.Mode]++
	m.latencies[LatencyToBucket(e.Latency)]++
	if e.Degraded {
		m.degradedCount++
	}
	if e.ResultCount == 0 {
		m.zeroResCount++
		m.zeroResults.Add(e.Query)
	}

	for _, term := range ExtractTerms(e.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
}

// Snapshot returns a copy of the current aggregates.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		ModeCounts:          make(map[string]int64, len(m.modes)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroResultQueries:   m.zeroResults.Items(),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResCount,
		DegradedCount:       m.degradedCount,
		Since:               m.startTime,
	}
	for k, v := range m.modes {
		snap.ModeCounts[k] = v
	}
	for k, v := range m.latencies {
		snap.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	return snap
}

// Flush persists the current aggregates. No-op without a store.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}
	snap := m.Snapshot()
	date := time.Now().UTC().Format("2006-01-02")

	if err := m.store.SaveModeCounts(date, snap.ModeCounts); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(date, snap.LatencyDistribution); err != nil {
		return err
	}
	terms := make(map[string]int64, len(snap.TopTerms))
	for _, t := range snap.TopTerms {
		terms[t.Term] = t.Count
	}
	return m.store.UpsertTermCounts(terms)
}

// Close stops the flush loop and writes a final flush.
func (m *QueryMetrics) Close() error {
	var err error
	m.stopped.Do(func() {
		close(m.stopCh)
		err = m.Flush()
	})
	return err
}

func (m *QueryMetrics) flushLoop() {
	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}
