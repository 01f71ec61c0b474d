package memory

import "context"

// Adapter is the uniform storage contract every tier backend satisfies.
// Back-end failures degrade to false/empty results rather than raising;
// the caller decides how to treat a degraded response.
type Adapter interface {
	Store(ctx context.Context, rec *Record) bool
	Retrieve(ctx context.Context, id string) *Record
	Update(ctx context.Context, rec *Record) bool
	Delete(ctx context.Context, id string) bool
	Search(ctx context.Context, query string, limit int) []*Record
	Close() error
}

// Conflict describes a near-duplicate active record surfaced by the
// vector adapter's conflict-detection extension.
type Conflict struct {
	Existing        *Record
	NewConfidence   float64
	Similarity      float64
	SuggestedAction string // "overwrite" or "ignore"
}

// VectorAdapter is the long-term adapter's extension surface beyond Adapter.
type VectorAdapter interface {
	Adapter

	// Upsert is two-stage ingestion's stage 1: a fast insert with minimal payload.
	Upsert(ctx context.Context, rec *Record, embedding []float32) bool
	// UpdatePayload is two-stage ingestion's stage 2: payload-only update that
	// preserves the existing vector id and embedding.
	UpdatePayload(ctx context.Context, id string, metadata map[string]any) bool

	// ExactMatch looks up the single active record for (userID, entityType, entityValue).
	ExactMatch(ctx context.Context, userID, entityType, entityValue string) *Record
	// DetectConflicts compares a candidate value against existing active records
	// of the same entity type for the user, via embedding cosine similarity.
	DetectConflicts(ctx context.Context, userID, entityType, value string, embedding []float32, confidence float64) []Conflict
	// FindLowHotness returns active records with access_count <= maxAccess and
	// created_at older than olderThanDays.
	FindLowHotness(ctx context.Context, userID string, maxAccess int64, olderThanDays int) []*Record
	// Archive and MarkForReview perform status transitions.
	Archive(ctx context.Context, id string) bool
	MarkForReview(ctx context.Context, id, reason string) bool
}

// GraphAdapter is the document/graph adapter's extension surface: it stores
// the memory as a document and exposes entity/relation tables for the
// hybrid RAG engine's graph track.
type GraphAdapter interface {
	Adapter

	UpsertEntity(ctx context.Context, key, name, entityType string, attrs map[string]any) bool
	UpsertRelation(ctx context.Context, from, to, relType string) bool
	Neighbors(ctx context.Context, entityKey string, depth int) []EntityRef
	FindEntitiesByText(ctx context.Context, text string, limit int) []EntityRef
}

// EntityRef is a lightweight graph-track result: an entity plus the memory
// records attached to it.
type EntityRef struct {
	Key     string
	Name    string
	Type    string
	Records []*Record
}
