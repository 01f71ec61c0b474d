package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AAM is the agent augmented memory core: tier routing and cross-tier
// orchestration over the short-term (KV), long-term (vector) and optional
// shadow graph/document adapters.
type AAM struct {
	ShortTerm Adapter
	LongTerm  Adapter
	Graph     GraphAdapter
	log       *logrus.Entry
}

// NewAAM wires the tier adapters. ShortTerm, LongTerm and Graph may each be
// nil; callers disable a tier by leaving its field unset.
func NewAAM(shortTerm, longTerm Adapter, graph GraphAdapter) *AAM {
	return &AAM{
		ShortTerm: shortTerm,
		LongTerm:  longTerm,
		Graph:     graph,
		log:       logrus.WithField("component", "aam_core"),
	}
}

func (a *AAM) adapterFor(t Type) Adapter {
	switch t {
	case ShortTerm:
		return a.ShortTerm
	case LongTerm:
		return a.LongTerm
	default:
		return nil
	}
}

// StoreMemory generates a memory_id if absent, stores to the adapter of
// type, and shadow-writes a document to the graph adapter if enabled.
// Returns the empty string on fatal store failure.
//
// When the record carries a (user_id, entity_type, entity_value) triple and
// the target adapter supports ExactMatch, an existing active record for that
// triple is updated in place instead of minting a second one, keeping the
// "at most one active record per entity" invariant without requiring the
// caller to pass an explicit memoryID.
func (a *AAM) StoreMemory(ctx context.Context, content string, memType Type, priority Priority, metadata map[string]any, memoryID string) string {
	adapter := a.adapterFor(memType)
	if adapter == nil {
		a.log.WithField("memory_type", memType).Warn("store_memory: no adapter enabled for type")
		return ""
	}

	userID, _ := metadata["user_id"].(string)
	entityType, _ := metadata["entity_type"].(string)
	entityValue, _ := metadata["entity_value"].(string)

	if memoryID == "" && userID != "" && entityType != "" && entityValue != "" {
		if vector, ok := adapter.(VectorAdapter); ok {
			if existing := vector.ExactMatch(ctx, userID, entityType, entityValue); existing != nil {
				existing.Content = content
				existing.Priority = priority
				for k, v := range metadata {
					existing.Metadata[k] = v
				}
				existing.UpdatedAt = time.Now()
				if !adapter.Update(ctx, existing) {
					a.log.WithField("id", existing.ID).Warn("store_memory: exact-match update failed")
					return ""
				}
				if a.Graph != nil {
					a.Graph.Update(ctx, existing)
				}
				return existing.ID
			}
		}
	}

	if memoryID == "" {
		memoryID = uuid.New().String()
	}
	rec := New(content, memType, priority)
	rec.ID = memoryID
	if metadata != nil {
		rec.Metadata = metadata
	}
	rec.UserID = userID
	rec.EntityType = entityType
	rec.EntityValue = entityValue
	if !adapter.Store(ctx, rec) {
		a.log.WithField("id", memoryID).Warn("store_memory: primary store failed")
		return ""
	}
	if a.Graph != nil {
		if ok := a.Graph.Store(ctx, rec); !ok {
			a.log.WithField("id", memoryID).Warn("store_memory: shadow graph write failed")
		}
	}
	return memoryID
}

// RetrieveMemory queries the given type's adapter, or, if type is empty,
// every enabled tier in short_term -> long_term order, stopping at the
// first hit. A hit always bumps access bookkeeping.
func (a *AAM) RetrieveMemory(ctx context.Context, id string, memType Type) *Record {
	tiers := []Type{memType}
	if memType == "" {
		tiers = []Type{ShortTerm, LongTerm}
	}
	for _, t := range tiers {
		adapter := a.adapterFor(t)
		if adapter == nil {
			continue
		}
		rec := adapter.Retrieve(ctx, id)
		if rec == nil {
			continue
		}
		rec.Touch()
		adapter.Update(ctx, rec)
		return rec
	}
	return nil
}

// UpdateMemory is a read-modify-write: updated_at always strictly advances,
// created_at never changes. It mirrors to the graph adapter if enabled.
func (a *AAM) UpdateMemory(ctx context.Context, id string, memType Type, content *string, priority *Priority, metadata map[string]any) bool {
	rec := a.RetrieveMemory(ctx, id, memType)
	if rec == nil {
		return false
	}
	if content != nil {
		rec.Content = *content
	}
	if priority != nil {
		rec.Priority = *priority
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now()
	adapter := a.adapterFor(rec.MemoryType)
	if adapter == nil || !adapter.Update(ctx, rec) {
		return false
	}
	if a.Graph != nil {
		a.Graph.Update(ctx, rec)
	}
	return true
}

// DeleteMemory deletes from the given type's adapter, or, if type is empty,
// tries every tier; success if at least one tier deleted the record. The
// graph adapter is always attempted too, best-effort.
func (a *AAM) DeleteMemory(ctx context.Context, id string, memType Type) bool {
	tiers := []Type{memType}
	if memType == "" {
		tiers = []Type{ShortTerm, LongTerm}
	}
	deleted := false
	for _, t := range tiers {
		adapter := a.adapterFor(t)
		if adapter == nil {
			continue
		}
		if adapter.Delete(ctx, id) {
			deleted = true
		}
	}
	if a.Graph != nil {
		a.Graph.Delete(ctx, id)
	}
	return deleted
}

// SearchMemories searches a single tier when memType is given, otherwise
// merges short_term and long_term results, filters by min_relevance and
// sorts by (relevance_score, priority, accessed_at) descending.
func (a *AAM) SearchMemories(ctx context.Context, query string, memType Type, limit int, minRelevance float64) []*Record {
	var results []*Record
	tiers := []Type{memType}
	if memType == "" {
		tiers = []Type{ShortTerm, LongTerm}
	}
	for _, t := range tiers {
		adapter := a.adapterFor(t)
		if adapter == nil {
			continue
		}
		results = append(results, adapter.Search(ctx, query, limit)...)
	}
	filtered := results[:0]
	for _, r := range results {
		if r.RelevanceScore >= minRelevance {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].RelevanceScore != filtered[j].RelevanceScore {
			return filtered[i].RelevanceScore > filtered[j].RelevanceScore
		}
		if filtered[i].Priority.Rank() != filtered[j].Priority.Rank() {
			return filtered[i].Priority.Rank() > filtered[j].Priority.Rank()
		}
		return filtered[i].AccessedAt.After(filtered[j].AccessedAt)
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// SyncMemory behaves like UpdateMemory but explicitly writes to every
// enabled adapter, best-effort on non-primary tiers.
func (a *AAM) SyncMemory(ctx context.Context, id string, content *string, metadata map[string]any) bool {
	rec := a.RetrieveMemory(ctx, id, "")
	if rec == nil {
		return false
	}
	if content != nil {
		rec.Content = *content
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now()

	primary := a.adapterFor(rec.MemoryType)
	ok := primary != nil && primary.Update(ctx, rec)

	for _, t := range []Type{ShortTerm, LongTerm} {
		if t == rec.MemoryType {
			continue
		}
		if adapter := a.adapterFor(t); adapter != nil {
			adapter.Update(ctx, rec)
		}
	}
	if a.Graph != nil {
		a.Graph.Update(ctx, rec)
	}
	return ok
}

// IncrementalUpdate appends text (newline-joined) to content and
// shallow-merges metadata, then persists via UpdateMemory.
func (a *AAM) IncrementalUpdate(ctx context.Context, id string, contentDelta string, metadataDelta map[string]any) bool {
	rec := a.RetrieveMemory(ctx, id, "")
	if rec == nil {
		return false
	}
	newContent := rec.Content
	if contentDelta != "" {
		newContent = strings.TrimRight(rec.Content, "\n") + "\n" + contentDelta
	}
	return a.UpdateMemory(ctx, id, rec.MemoryType, &newContent, nil, metadataDelta)
}
