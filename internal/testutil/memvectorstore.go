package testutil

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/chatforge/knowledge/internal/domain"
	"github.com/chatforge/knowledge/internal/vectorstore"
)

// MemVectorStore is an in-memory stand-in for the pgvector adapter.
// It keeps one collection per tenant, searches by cosine similarity,
// and can be switched unavailable to exercise the fallback path.
type MemVectorStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]vectorstore.Record // tenant -> id -> record
	dims        map[string]int
	unavailable bool
}

// NewMemVectorStore creates an empty store.
func NewMemVectorStore() *MemVectorStore {
	return &MemVectorStore{
		collections: make(map[string]map[string]vectorstore.Record),
		dims:        make(map[string]int),
	}
}

// SetUnavailable toggles the simulated backend outage.
func (s *MemVectorStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// Count reports the number of vectors in a tenant collection.
func (s *MemVectorStore) Count(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[tenantID])
}

func (s *MemVectorStore) down() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable
}

func (s *MemVectorStore) EnsureCollection(_ context.Context, tenantID string, dims int) error {
	if s.down() {
		return domain.ErrBackendUnavailable
	}
	if dims <= 0 {
		return fmt.Errorf("%w: dims must be positive", domain.ErrConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[tenantID]; !ok {
		s.collections[tenantID] = make(map[string]vectorstore.Record)
		s.dims[tenantID] = dims
	}
	return nil
}

func (s *MemVectorStore) Upsert(_ context.Context, tenantID string, records []vectorstore.Record) error {
	if s.down() {
		return domain.ErrBackendUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[tenantID]
	if !ok {
		coll = make(map[string]vectorstore.Record)
		s.collections[tenantID] = coll
	}
	for _, rec := range records {
		coll[rec.ID] = rec
	}
	return nil
}

func (s *MemVectorStore) Delete(_ context.Context, tenantID string, ids []string) error {
	if s.down() {
		return domain.ErrBackendUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.collections[tenantID], id)
	}
	return nil
}

func (s *MemVectorStore) DropCollection(_ context.Context, tenantID string) error {
	if s.down() {
		return domain.ErrBackendUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, tenantID)
	delete(s.dims, tenantID)
	return nil
}

func (s *MemVectorStore) Search(_ context.Context, tenantID string, vector []float32, params vectorstore.SearchParams) ([]vectorstore.Hit, error) {
	if s.down() {
		return nil, domain.ErrBackendUnavailable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	kbFilter := make(map[string]bool, len(params.KnowledgeBaseIDs))
	for _, id := range params.KnowledgeBaseIDs {
		kbFilter[id] = true
	}

	var hits []vectorstore.Hit
	for _, rec := range s.collections[tenantID] {
		if len(kbFilter) > 0 && !kbFilter[rec.Payload.KnowledgeBaseID] {
			continue
		}
		score := cosine(vector, rec.Vector)
		if score < params.ScoreThreshold {
			continue
		}
		hits = append(hits, vectorstore.Hit{ID: rec.ID, Score: score, Payload: rec.Payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemVectorStore) Stats(_ context.Context, tenantID string) (vectorstore.Stats, error) {
	if s.down() {
		return vectorstore.Stats{Status: "degraded"}, domain.ErrBackendUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.Stats{Count: int64(len(s.collections[tenantID])), Status: "ready"}, nil
}

func (s *MemVectorStore) HealthCheck(_ context.Context) vectorstore.Health {
	if s.down() {
		return vectorstore.Health{Healthy: false, Detail: "simulated outage"}
	}
	return vectorstore.Health{Healthy: true}
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// MemUsageRecorder counts usage increments per tenant.
type MemUsageRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	fail   bool
}

// NewMemUsageRecorder creates an empty recorder.
func NewMemUsageRecorder() *MemUsageRecorder {
	return &MemUsageRecorder{counts: make(map[string]int)}
}

// SetFail makes Record return an error.
func (r *MemUsageRecorder) SetFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *MemUsageRecorder) Record(_ context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("usage recorder configured to fail")
	}
	r.counts[tenantID]++
	return nil
}

// CountFor reports recorded increments for a tenant.
func (r *MemUsageRecorder) CountFor(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[tenantID]
}
