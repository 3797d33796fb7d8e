package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"tutor/internal/domain"
)

type entry struct {
	id       string
	vector   []float64
	metadata map[string]any
}

// Storage is a simple in-memory vector index using brute-force cosine
// similarity, partitioned by namespace.
type Storage struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string][]entry
}

func NewStorage() *Storage { return &Storage{namespaces: make(map[string][]entry)} }

// Init fixes the vector dimension. Changing it drops every namespace.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.namespaces = make(map[string][]entry)
	}
	s.dimension = dimension
	return nil
}

// Upsert inserts records, replacing any with the same id in the namespace.
func (s *Storage) Upsert(_ context.Context, namespace string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	entries := s.namespaces[namespace]
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.id] = i
	}
	for _, r := range records {
		e := entry{id: r.ID, vector: append([]float64(nil), r.Vector...), metadata: copyMeta(r.Metadata)}
		if i, ok := index[r.ID]; ok {
			entries[i] = e
			continue
		}
		index[r.ID] = len(entries)
		entries = append(entries, e)
	}
	s.namespaces[namespace] = entries
	return nil
}

// Query returns the TopK most similar entries of the namespace, best first.
// Ties keep insertion order.
func (s *Storage) Query(_ context.Context, q domain.QueryRequest) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	entries := s.namespaces[q.Namespace]
	scores := make([]float64, len(entries))
	idxs := make([]int, len(entries))
	for i := range entries {
		scores[i] = cosine(entries[i].vector, q.Vector)
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.Match, 0, topK)
	for _, j := range idxs[:topK] {
		m := domain.Match{ID: entries[j].id, Score: scores[j]}
		if q.IncludeMetadata {
			m.Metadata = copyMeta(entries[j].metadata)
		}
		results = append(results, m)
	}
	return results, nil
}

// Clear drops the namespace.
func (s *Storage) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Len reports how many entries the namespace holds.
func (s *Storage) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
