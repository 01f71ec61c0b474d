package mcpserver

import (
	"context"
	"sync"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

// inMemoryVectorAdapter adapts memory.InMemoryAdapter to the long-term
// VectorAdapter contract for local/dev mode and tests, the same role the
// teacher's MockVectorStore plays for storage.go's VectorStore interface.
type inMemoryVectorAdapter struct {
	*memory.InMemoryAdapter
}

func (v inMemoryVectorAdapter) Upsert(ctx context.Context, rec *memory.Record, embedding []float32) bool {
	rec.Embedding = embedding
	return v.Store(ctx, rec)
}

func (v inMemoryVectorAdapter) UpdatePayload(ctx context.Context, id string, metadata map[string]any) bool {
	rec := v.Retrieve(ctx, id)
	if rec == nil {
		return false
	}
	for k, val := range metadata {
		switch k {
		case "status":
			if s, ok := val.(string); ok {
				rec.Status = memory.Status(s)
			}
		default:
			rec.Metadata[k] = val
		}
	}
	return v.Update(ctx, rec)
}

func (v inMemoryVectorAdapter) SearchByVector(ctx context.Context, userID string, embedding []float32, limit int, filters map[string]string) []*memory.Record {
	all := v.ListActive(ctx, userID, limit)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (v inMemoryVectorAdapter) ExactMatch(ctx context.Context, userID, entityType, entityValue string) *memory.Record {
	for _, rec := range v.ListActive(ctx, userID, 0) {
		if rec.EntityType == entityType && rec.EntityValue == entityValue {
			return rec
		}
	}
	return nil
}

func (v inMemoryVectorAdapter) DetectConflicts(ctx context.Context, userID, entityType, value string, embedding []float32, confidence float64) []memory.Conflict {
	var conflicts []memory.Conflict
	for _, rec := range v.ListActive(ctx, userID, 0) {
		if rec.EntityType != entityType {
			continue
		}
		sim := memory.CosineSimilarity(embedding, rec.Embedding)
		if sim <= 0.85 || sim >= 1.0 {
			continue
		}
		action := "ignore"
		if confidence > rec.Confidence {
			action = "overwrite"
		}
		conflicts = append(conflicts, memory.Conflict{
			Existing:        rec,
			NewConfidence:   confidence,
			Similarity:      sim,
			SuggestedAction: action,
		})
	}
	return conflicts
}

// graphEntity is one node of the in-memory adapter's entity/relation index.
type graphEntity struct {
	key, name, entityType string
	attrs                 map[string]any
	relations             []string
}

// graphIndex is the entity/relation table inMemoryGraphAdapter keeps
// alongside the record map, mirroring MongoGraph's entities/relations
// collections for local/dev mode and tests.
type graphIndex struct {
	mu       sync.RWMutex
	entities map[string]*graphEntity
}

func newGraphIndex() *graphIndex {
	return &graphIndex{entities: make(map[string]*graphEntity)}
}

// inMemoryGraphAdapter adapts memory.InMemoryAdapter to the GraphAdapter
// contract for local/dev mode and tests: it stores a minimal entity/relation
// index alongside the record map.
type inMemoryGraphAdapter struct {
	*memory.InMemoryAdapter
	index *graphIndex
}

func newInMemoryGraphAdapter(records *memory.InMemoryAdapter) inMemoryGraphAdapter {
	return inMemoryGraphAdapter{InMemoryAdapter: records, index: newGraphIndex()}
}

func (g inMemoryGraphAdapter) UpsertEntity(ctx context.Context, key, name, entityType string, attrs map[string]any) bool {
	g.index.mu.Lock()
	defer g.index.mu.Unlock()
	ent, ok := g.index.entities[key]
	if !ok {
		ent = &graphEntity{key: key}
		g.index.entities[key] = ent
	}
	ent.name = name
	ent.entityType = entityType
	ent.attrs = attrs
	return true
}

func (g inMemoryGraphAdapter) UpsertRelation(ctx context.Context, from, to, relType string) bool {
	g.index.mu.Lock()
	defer g.index.mu.Unlock()
	ent, ok := g.index.entities[from]
	if !ok {
		ent = &graphEntity{key: from}
		g.index.entities[from] = ent
	}
	for _, existing := range ent.relations {
		if existing == to {
			return true
		}
	}
	ent.relations = append(ent.relations, to)
	return true
}

// Neighbors returns entities within depth hops of entityKey, each carrying
// the memory records whose content matches the neighbor's name.
func (g inMemoryGraphAdapter) Neighbors(ctx context.Context, entityKey string, depth int) []memory.EntityRef {
	if depth <= 0 {
		depth = 1
	}
	g.index.mu.RLock()
	frontier := []string{entityKey}
	visited := map[string]bool{entityKey: true}
	for d := 0; d < depth; d++ {
		var next []string
		for _, key := range frontier {
			ent, ok := g.index.entities[key]
			if !ok {
				continue
			}
			for _, to := range ent.relations {
				if !visited[to] {
					visited[to] = true
					next = append(next, to)
				}
			}
		}
		frontier = next
	}
	var neighborEntities []*graphEntity
	for key := range visited {
		if key == entityKey {
			continue
		}
		if ent, ok := g.index.entities[key]; ok {
			neighborEntities = append(neighborEntities, ent)
		}
	}
	g.index.mu.RUnlock()

	var refs []memory.EntityRef
	for _, ent := range neighborEntities {
		records := g.Search(ctx, ent.name, 5)
		refs = append(refs, memory.EntityRef{Key: ent.key, Name: ent.name, Type: ent.entityType, Records: records})
	}
	return refs
}

func (g inMemoryGraphAdapter) FindEntitiesByText(ctx context.Context, text string, limit int) []memory.EntityRef {
	records := g.Search(ctx, text, limit)
	if len(records) == 0 {
		return nil
	}
	return []memory.EntityRef{{Key: text, Name: text, Type: "keyword", Records: records}}
}
