package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryAdapter is a process-local Adapter used in tests and local/dev
// mode, the same role the teacher's FileVectorStore plays for its VectorStore
// interface: a simple reference implementation with the same contract as the
// networked backends.
type InMemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryAdapter returns an empty in-memory adapter.
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{records: make(map[string]*Record)}
}

func (m *InMemoryAdapter) Store(ctx context.Context, rec *Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return true
}

func (m *InMemoryAdapter) Retrieve(ctx context.Context, id string) *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	return rec.Clone()
}

func (m *InMemoryAdapter) Update(ctx context.Context, rec *Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return false
	}
	m.records[rec.ID] = rec.Clone()
	return true
}

func (m *InMemoryAdapter) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false
	}
	delete(m.records, id)
	return true
}

func (m *InMemoryAdapter) Search(ctx context.Context, query string, limit int) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	q := strings.ToLower(query)
	for _, rec := range m.records {
		if rec.Status == StatusArchived {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(rec.Content), q) {
			continue
		}
		clone := rec.Clone()
		clone.RelevanceScore = baseRelevance(q, rec.Content)
		out = append(out, clone)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *InMemoryAdapter) Close() error { return nil }

// baseRelevance is a simple term-overlap heuristic used by the in-memory
// adapter standing in for a real embedding similarity score.
func baseRelevance(query, content string) float64 {
	if query == "" {
		return 0.5
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return 0.5
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// snapshot returns all records regardless of status, used by the review job
// and hotness queries when running against the in-memory adapter in tests.
func (m *InMemoryAdapter) snapshot() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out
}

// ListUserIDs returns every distinct user id with at least one record,
// satisfying the review job's Source contract for tests and local/dev mode.
func (m *InMemoryAdapter) ListUserIDs(ctx context.Context) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, rec := range m.records {
		if rec.UserID != "" && !seen[rec.UserID] {
			seen[rec.UserID] = true
			out = append(out, rec.UserID)
		}
	}
	return out
}

// ListActive returns a user's active records, satisfying the review job's
// Source contract.
func (m *InMemoryAdapter) ListActive(ctx context.Context, userID string, limit int) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Status == StatusActive {
			out = append(out, rec.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindLowHotness returns a user's active records with access_count <=
// maxAccess and created_at older than olderThanDays, mirroring
// QdrantVector.FindLowHotness for tests run against the in-memory adapter.
func (m *InMemoryAdapter) FindLowHotness(ctx context.Context, userID string, maxAccess int64, olderThanDays int) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	var out []*Record
	for _, rec := range m.records {
		if rec.UserID != userID || rec.Status != StatusActive {
			continue
		}
		if rec.AccessCount <= maxAccess && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Archive transitions a record to status=archived.
func (m *InMemoryAdapter) Archive(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return false
	}
	rec.Status = StatusArchived
	rec.UpdatedAt = time.Now()
	return true
}

// MarkForReview transitions a record to status=review, recording the reason.
func (m *InMemoryAdapter) MarkForReview(ctx context.Context, id, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return false
	}
	rec.Status = StatusReview
	rec.Metadata["review_reason"] = reason
	rec.UpdatedAt = time.Now()
	return true
}

// Stats returns a minimal per-user stats map for the review job's report.
func (m *InMemoryAdapter) Stats(ctx context.Context, userID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, rec := range m.records {
		if rec.UserID == userID {
			total++
		}
	}
	return map[string]any{"total_count": total}
}
