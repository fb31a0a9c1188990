// Package store holds the data collaborators the builtin tools query:
// a fraud-transaction store and a documentation index. The production
// deployment backs these with a managed database; the interfaces here
// are the boundary, and the in-memory implementations serve tests and
// local runs.
package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Transaction is one row of the fraud-transaction table.
type Transaction struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"trans_time"`
	Category string    `json:"category"`
	Merchant string    `json:"merchant"`
	Amount   float64   `json:"amount"`
	State    string    `json:"state"`
	City     string    `json:"city"`
	IsFraud  bool      `json:"is_fraud"`
}

// Filter narrows a transaction query. Zero values mean "any".
type Filter struct {
	Category  string
	State     string
	MinAmount float64
	MaxAmount float64
	// IsFraud filters on the fraud flag when non-nil.
	IsFraud *bool
	Limit   int
	Offset  int
}

// Summary aggregates the matching transactions.
type Summary struct {
	Total       int                `json:"total"`
	FraudCount  int                `json:"fraud_count"`
	TotalAmount float64            `json:"total_amount"`
	ByCategory  map[string]int     `json:"by_category"`
}

// TransactionStore exposes query access to the fraud-transaction table.
type TransactionStore interface {
	// Query returns the matching transactions and the total match
	// count before Limit/Offset are applied.
	Query(ctx context.Context, f Filter) ([]Transaction, int, error)

	// Summarize aggregates all transactions matching the filter.
	Summarize(ctx context.Context, f Filter) (*Summary, error)
}

// Snippet is one documentation fragment returned by a search.
type Snippet struct {
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// DocumentIndex exposes keyword search over indexed documentation.
type DocumentIndex interface {
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// MemoryStore is an in-memory TransactionStore.
// It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []Transaction
}

// NewMemoryStore creates a store seeded with the given transactions.
func NewMemoryStore(rows ...Transaction) *MemoryStore {
	s := &MemoryStore{}
	s.rows = append(s.rows, rows...)
	return s
}

// Add appends transactions to the store.
func (s *MemoryStore) Add(rows ...Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

// Query implements TransactionStore.
func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Transaction
	for _, tx := range s.rows {
		if matches(tx, f) {
			matched = append(matched, tx)
		}
	}
	total := len(matched)

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// Summarize implements TransactionStore.
func (s *MemoryStore) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{ByCategory: make(map[string]int)}
	for _, tx := range s.rows {
		if !matches(tx, f) {
			continue
		}
		sum.Total++
		sum.TotalAmount += tx.Amount
		sum.ByCategory[tx.Category]++
		if tx.IsFraud {
			sum.FraudCount++
		}
	}
	return sum, nil
}

func matches(tx Transaction, f Filter) bool {
	if f.Category != "" && !strings.EqualFold(tx.Category, f.Category) {
		return false
	}
	if f.State != "" && !strings.EqualFold(tx.State, f.State) {
		return false
	}
	if f.MinAmount > 0 && tx.Amount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && tx.Amount > f.MaxAmount {
		return false
	}
	if f.IsFraud != nil && tx.IsFraud != *f.IsFraud {
		return false
	}
	return true
}

// MemoryIndex is an in-memory keyword DocumentIndex.
type MemoryIndex struct {
	mu    sync.RWMutex
	pages []Snippet
}

// NewMemoryIndex creates an index over the given page texts, keyed by
// page number in order.
func NewMemoryIndex(pages ...string) *MemoryIndex {
	idx := &MemoryIndex{}
	for i, text := range pages {
		idx.pages = append(idx.pages, Snippet{Page: i + 1, Text: text})
	}
	return idx
}

// Search implements DocumentIndex with case-insensitive term counting.
func (idx *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []Snippet
	for _, page := range idx.pages {
		lower := strings.ToLower(page.Text)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(lower, term))
		}
		if score > 0 {
			hit := page
			hit.Score = score
			hits = append(hits, hit)
		}
	}

	// Highest score first; stable for equal scores so earlier pages win.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
