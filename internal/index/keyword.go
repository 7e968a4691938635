// Package index builds the derived retrieval structures over the
// store's entities: a BM25 keyword index, an HNSW vector index, and
// per-repository summaries. Indexes are disposable caches, fully
// rebuildable from a store snapshot; the store stays the only source
// of truth.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// KeywordResult is one BM25 hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// KeywordIndex wraps Bleve for BM25 scoring over concept text.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

type keywordDocument struct {
	Content string `json:"content"`
}

// NewKeywordIndex creates a keyword index at path, or in memory when
// path is empty. An unreadable existing index is cleared and recreated:
// indexes are rebuildable, so recovery is reindex, not repair.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		} else if err != nil {
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index unreadable and cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}
	return &KeywordIndex{index: idx, path: path}, nil
}

// Index upserts documents: id -> searchable text.
func (k *KeywordIndex) Index(ctx context.Context, docs map[string]string) error {
	if len(docs) == 0 {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for id, content := range docs {
		if err := batch.Index(id, keywordDocument{Content: content}); err != nil {
			return fmt.Errorf("failed to index %s: %w", id, err)
		}
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute index batch: %w", err)
	}
	_ = ctx
	return nil
}

// Clear removes every document.
func (k *KeywordIndex) Clear(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	count, _ := k.index.DocCount()
	if count == 0 {
		return nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to enumerate documents: %w", err)
	}
	batch := k.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	return k.index.Batch(batch)
}

// Search returns BM25-ranked hits for the query.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// DocCount returns the number of indexed documents.
func (k *KeywordIndex) DocCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return 0
	}
	n, _ := k.index.DocCount()
	return int(n)
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.index.Close()
}
