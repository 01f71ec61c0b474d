package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// CollectionNaming selects how the vector adapter partitions collections.
type CollectionNaming string

const (
	CollectionPerFile CollectionNaming = "file_based"
	CollectionPerUser CollectionNaming = "user_based"
)

// QdrantVector is the long-term vector adapter: content embeddings plus
// the conflict-detection, exact-match and hotness extension surface the
// AAM core and hybrid RAG engine rely on.
type QdrantVector struct {
	client *qdrant.Client
	naming CollectionNaming
	size   uint64
	log    *logrus.Entry

	// collOf remembers which collection last held a given memory id, so
	// Retrieve/Delete can resolve a collection from a bare id the way
	// Qdrant itself cannot: a point id alone carries no collection. It is
	// populated by every call that already knows both the id and its
	// collection (Upsert, and the various Query paths below), so any
	// Retrieve/Delete/Archive/MarkForReview that follows a prior SearchByVector,
	// Store, ExactMatch, DetectConflicts or FindLowHotness in this
	// process resolves correctly.
	collOf   map[string]string
	collOfMu sync.RWMutex
}

// QdrantVectorConfig configures the long-term adapter.
type QdrantVectorConfig struct {
	Host           string
	Port           int
	APIKey         string
	VectorSize     uint64
	Naming         CollectionNaming
}

// NewQdrantVector dials Qdrant over gRPC.
func NewQdrantVector(cfg QdrantVectorConfig) (*QdrantVector, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 1536
	}
	if cfg.Naming == "" {
		cfg.Naming = CollectionPerUser
	}
	qc := &qdrant.Config{Host: cfg.Host, Port: cfg.Port}
	if cfg.APIKey != "" {
		qc.APIKey = cfg.APIKey
	}
	client, err := qdrant.NewClient(qc)
	if err != nil {
		return nil, fmt.Errorf("memory: dial qdrant: %w", err)
	}
	return &QdrantVector{
		client: client,
		naming: cfg.Naming,
		size:   cfg.VectorSize,
		log:    logrus.WithField("component", "vector_qdrant"),
		collOf: make(map[string]string),
	}, nil
}

func (q *QdrantVector) rememberCollection(id, coll string) {
	if id == "" || coll == "" {
		return
	}
	q.collOfMu.Lock()
	q.collOf[id] = coll
	q.collOfMu.Unlock()
}

func (q *QdrantVector) lookupCollection(id string) (string, bool) {
	q.collOfMu.RLock()
	defer q.collOfMu.RUnlock()
	coll, ok := q.collOf[id]
	return coll, ok
}

func (q *QdrantVector) forgetCollection(id string) {
	q.collOfMu.Lock()
	delete(q.collOf, id)
	q.collOfMu.Unlock()
}

func (q *QdrantVector) collectionFor(rec *Record) string {
	switch q.naming {
	case CollectionPerFile:
		if fileID, ok := rec.Metadata["file_id"].(string); ok && fileID != "" {
			return "mem_file_" + fileID
		}
		return "mem_file_default"
	default:
		if rec.UserID != "" {
			return "mem_user_" + rec.UserID
		}
		return "mem_user_global"
	}
}

func (q *QdrantVector) ensureCollection(ctx context.Context, name string) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("memory: check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func payloadFromRecord(rec *Record) map[string]*qdrant.Value {
	p := map[string]*qdrant.Value{
		"content":      qdrant.NewValueString(rec.Content),
		"memory_id":    qdrant.NewValueString(rec.ID),
		"memory_type":  qdrant.NewValueString(string(rec.MemoryType)),
		"priority":     qdrant.NewValueString(string(rec.Priority)),
		"user_id":      qdrant.NewValueString(rec.UserID),
		"entity_type":  qdrant.NewValueString(rec.EntityType),
		"entity_value": qdrant.NewValueString(rec.EntityValue),
		"status":       qdrant.NewValueString(string(rec.Status)),
		"confidence":   qdrant.NewValueDouble(rec.Confidence),
		"created_at":   qdrant.NewValueString(rec.CreatedAt.Format(time.RFC3339Nano)),
		"updated_at":   qdrant.NewValueString(rec.UpdatedAt.Format(time.RFC3339Nano)),
		"accessed_at":  qdrant.NewValueString(rec.AccessedAt.Format(time.RFC3339Nano)),
		"access_count": qdrant.NewValueInt(rec.AccessCount),
	}
	if meta, err := json.Marshal(rec.Metadata); err == nil {
		p["metadata_json"] = qdrant.NewValueString(string(meta))
	}
	return p
}

func recordFromPoint(payload map[string]*qdrant.Value, embedding []float32) *Record {
	get := func(k string) string {
		if v, ok := payload[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	rec := &Record{
		ID:          get("memory_id"),
		Content:     get("content"),
		MemoryType:  Type(get("memory_type")),
		Priority:    Priority(get("priority")),
		UserID:      get("user_id"),
		EntityType:  get("entity_type"),
		EntityValue: get("entity_value"),
		Status:      Status(get("status")),
		Embedding:   embedding,
		Metadata:    map[string]any{},
	}
	if v, ok := payload["confidence"]; ok {
		rec.Confidence = v.GetDoubleValue()
	}
	if v, ok := payload["access_count"]; ok {
		rec.AccessCount = v.GetIntegerValue()
	}
	if t, err := time.Parse(time.RFC3339Nano, get("created_at")); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, get("updated_at")); err == nil {
		rec.UpdatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, get("accessed_at")); err == nil {
		rec.AccessedAt = t
	}
	if v, ok := payload["metadata_json"]; ok {
		_ = json.Unmarshal([]byte(v.GetStringValue()), &rec.Metadata)
	}
	return rec
}

func vectorPointID(rec *Record) string {
	if rec.ID == "" {
		return uuid.New().String()
	}
	// Qdrant point ids must be UUID or integer; derive a stable UUIDv5 from memory_id.
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID)).String()
}

// Store is a one-shot upsert (embedding + payload together).
func (q *QdrantVector) Store(ctx context.Context, rec *Record) bool {
	return q.Upsert(ctx, rec, rec.Embedding)
}

// Upsert is two-stage ingestion's stage 1: fast insert with minimal payload.
func (q *QdrantVector) Upsert(ctx context.Context, rec *Record, embedding []float32) bool {
	coll := q.collectionFor(rec)
	if err := q.ensureCollection(ctx, coll); err != nil {
		q.log.WithError(err).Warn("ensure collection failed")
		return false
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(vectorPointID(rec)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: payloadFromRecord(rec),
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: coll,
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		q.log.WithError(err).WithField("id", rec.ID).Warn("upsert failed")
		return false
	}
	q.rememberCollection(rec.ID, coll)
	return true
}

// UpdatePayload is two-stage ingestion's stage 2: payload-only update that
// preserves the existing vector id and embedding. Qdrant's SetPayload does
// this natively.
func (q *QdrantVector) UpdatePayload(ctx context.Context, id string, metadata map[string]any) bool {
	rec := q.Retrieve(ctx, id)
	if rec == nil {
		return false
	}
	for k, v := range metadata {
		switch k {
		case "status":
			if s, ok := v.(string); ok {
				rec.Status = Status(s)
			}
		case "review_reason":
			rec.Metadata[k] = v
		default:
			rec.Metadata[k] = v
		}
	}
	rec.UpdatedAt = time.Now()
	coll := q.collectionFor(rec)
	payload := payloadFromRecord(rec)
	_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: coll,
		Payload:        payload,
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(vectorPointID(rec))),
	})
	if err != nil {
		q.log.WithError(err).WithField("id", id).Warn("update payload failed")
		return false
	}
	return true
}

// Retrieve fetches a record by memory id. Qdrant has no cross-collection
// lookup by point id, so this resolves the collection from collOf (recorded
// the last time this id was written or returned by SearchByVector/ExactMatch/
// DetectConflicts/FindLowHotness) and then filters that collection by the
// memory_id payload field. Returns nil if the id has not been seen by this
// adapter instance yet.
func (q *QdrantVector) Retrieve(ctx context.Context, id string) *Record {
	coll, ok := q.lookupCollection(id)
	if !ok {
		return nil
	}
	limit := uint64(1)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("memory_id", id),
		}},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return nil
	}
	return recordFromPoint(points[0].Payload, nil)
}

// Update rewrites content; best done as an Upsert to keep embedding fresh.
func (q *QdrantVector) Update(ctx context.Context, rec *Record) bool {
	return q.Upsert(ctx, rec, rec.Embedding)
}

// Delete removes a point by memory id, resolving its collection from collOf
// the same way Retrieve does, then delegating to DeleteFromCollection.
func (q *QdrantVector) Delete(ctx context.Context, id string) bool {
	coll, ok := q.lookupCollection(id)
	if !ok {
		q.log.WithField("id", id).Warn("delete failed: unknown collection for id")
		return false
	}
	if !q.DeleteFromCollection(ctx, coll, id) {
		return false
	}
	q.forgetCollection(id)
	return true
}

// DeleteFromCollection removes a point by its stable derived id from a
// specific collection.
func (q *QdrantVector) DeleteFromCollection(ctx context.Context, collection, memoryID string) bool {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(vectorPointID(&Record{ID: memoryID}))),
	})
	if err != nil {
		q.log.WithError(err).WithField("id", memoryID).Warn("delete failed")
		return false
	}
	return true
}

// Search satisfies the Adapter contract but always returns nil: this adapter
// does not embed text queries. Similarity search runs through
// SearchByVector with a caller-supplied embedding.
func (q *QdrantVector) Search(ctx context.Context, query string, limit int) []*Record {
	return nil
}

// SearchByVector performs the real similarity query with optional filters,
// always scoped to userID per the user-isolation contract.
func (q *QdrantVector) SearchByVector(ctx context.Context, userID string, embedding []float32, limit int, filters map[string]string) []*Record {
	coll := q.collectionFor(&Record{UserID: userID})
	if limit <= 0 {
		limit = 10
	}
	lim := uint64(limit)
	conditions := []*qdrant.Condition{
		qdrant.NewMatch("user_id", userID),
	}
	for k, v := range filters {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         &qdrant.Filter{Must: conditions},
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		q.log.WithError(err).Warn("search failed")
		return nil
	}
	out := make([]*Record, 0, len(results))
	for _, p := range results {
		rec := recordFromPoint(p.Payload, nil)
		rec.RelevanceScore = float64(p.Score)
		q.rememberCollection(rec.ID, coll)
		out = append(out, rec)
	}
	return out
}

// ExactMatch returns the single active record for (userID, entityType, entityValue).
func (q *QdrantVector) ExactMatch(ctx context.Context, userID, entityType, entityValue string) *Record {
	coll := q.collectionFor(&Record{UserID: userID})
	_, err := q.client.CollectionExists(ctx, coll)
	if err != nil {
		return nil
	}
	limit := uint64(1)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", userID),
			qdrant.NewMatch("entity_type", entityType),
			qdrant.NewMatch("entity_value", entityValue),
			qdrant.NewMatch("status", string(StatusActive)),
		}},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return nil
	}
	rec := recordFromPoint(points[0].Payload, nil)
	q.rememberCollection(rec.ID, coll)
	return rec
}

// DetectConflicts enumerates existing active records of the same entity type
// for the user and flags those with cosine similarity in (0.85, 1.0).
func (q *QdrantVector) DetectConflicts(ctx context.Context, userID, entityType, value string, embedding []float32, confidence float64) []Conflict {
	coll := q.collectionFor(&Record{UserID: userID})
	limit := uint64(50)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", userID),
			qdrant.NewMatch("entity_type", entityType),
			qdrant.NewMatch("status", string(StatusActive)),
		}},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		q.log.WithError(err).Warn("conflict scan failed")
		return nil
	}
	var conflicts []Conflict
	for _, p := range points {
		sim := float64(p.Score)
		if sim <= 0.85 || sim >= 1.0 {
			continue
		}
		existing := recordFromPoint(p.Payload, nil)
		q.rememberCollection(existing.ID, coll)
		action := "ignore"
		if confidence > existing.Confidence {
			action = "overwrite"
		}
		conflicts = append(conflicts, Conflict{
			Existing:        existing,
			NewConfidence:   confidence,
			Similarity:      sim,
			SuggestedAction: action,
		})
	}
	return conflicts
}

// FindLowHotness returns active records whose access_count <= maxAccess and
// created_at predates olderThanDays.
func (q *QdrantVector) FindLowHotness(ctx context.Context, userID string, maxAccess int64, olderThanDays int) []*Record {
	coll := q.collectionFor(&Record{UserID: userID})
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	limit := uint64(1000)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: coll,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", userID),
			qdrant.NewMatch("status", string(StatusActive)),
		}},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		q.log.WithError(err).Warn("low hotness scan failed")
		return nil
	}
	var out []*Record
	for _, p := range points {
		rec := recordFromPoint(p.Payload, nil)
		if rec.AccessCount <= maxAccess && rec.CreatedAt.Before(cutoff) {
			q.rememberCollection(rec.ID, coll)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Archive transitions a record to status=archived via a payload-only update.
func (q *QdrantVector) Archive(ctx context.Context, id string) bool {
	return q.UpdatePayload(ctx, id, map[string]any{"status": string(StatusArchived)})
}

// MarkForReview transitions a record to status=review, recording the reason.
func (q *QdrantVector) MarkForReview(ctx context.Context, id, reason string) bool {
	return q.UpdatePayload(ctx, id, map[string]any{
		"status":        string(StatusReview),
		"review_reason": reason,
	})
}

// Close closes the underlying gRPC connection.
func (q *QdrantVector) Close() error {
	return q.client.Close()
}
