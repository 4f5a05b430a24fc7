package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/hupe1980/reactmesh/core"
)

// Record is a single stored memory.
type Record struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// InMemoryStore is a naive process-local episodic memory. Search is a linear
// keyword scan (case insensitive) scoring each record by the fraction of
// query keywords it contains. Suitable for tests and demos; swap for a vector
// index for production retrieval.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store appends a new memory and returns its id.
func (m *InMemoryStore) Store(content string, metadata map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	id := uuid.NewString()
	m.records = append(m.records, Record{ID: id, Content: content, Metadata: md})

	return id
}

// Delete removes a stored memory by id.
func (m *InMemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

// Len returns the number of stored memories.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

// Search returns up to limit records matching query, best match first. Ties
// keep insertion order. An empty query matches every record with score 1.
func (m *InMemoryStore) Search(query string, limit int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keywords := keywordsOf(query)

	var results []Record

	for _, r := range m.records {
		score := 1.0
		if len(keywords) > 0 {
			score = matchScore(strings.ToLower(r.Content), keywords)
		}

		if score == 0 {
			continue
		}

		hit := r
		hit.Score = score
		results = append(results, hit)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// Retrieve implements Retriever. Matches are returned as system messages.
func (m *InMemoryStore) Retrieve(ctx context.Context, query string, limit int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := m.Search(query, limit)
	msgs := make([]core.Message, 0, len(records))

	for _, r := range records {
		msgs = append(msgs, core.NewSystemMessage("Relevant memory: "+r.Content))
	}

	return msgs, nil
}

func keywordsOf(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))

	for _, f := range fields {
		if len(f) < 3 {
			continue
		}

		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		keywords = append(keywords, f)
	}

	return keywords
}

func matchScore(content string, keywords []string) float64 {
	hits := 0

	for _, k := range keywords {
		if strings.Contains(content, k) {
			hits++
		}
	}

	return float64(hits) / float64(len(keywords))
}
