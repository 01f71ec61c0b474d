package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoGraph is the graph/document adapter: memories are stored as documents
// keyed by memory_id, with separate entity/relation collections used by the
// hybrid RAG engine's graph track.
type MongoGraph struct {
	client      *mongo.Client
	db          *mongo.Database
	memories    *mongo.Collection
	entities    *mongo.Collection
	relations   *mongo.Collection
	log         *logrus.Entry
}

// MongoGraphConfig configures the document adapter's connection.
type MongoGraphConfig struct {
	URI      string
	Database string
}

// NewMongoGraph connects to MongoDB and returns a ready graph adapter.
func NewMongoGraph(ctx context.Context, cfg MongoGraphConfig) (*MongoGraph, error) {
	if cfg.Database == "" {
		cfg.Database = "aam"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("memory: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("memory: ping mongo: %w", err)
	}
	db := client.Database(cfg.Database)
	return &MongoGraph{
		client:    client,
		db:        db,
		memories:  db.Collection("memories"),
		entities:  db.Collection("entities"),
		relations: db.Collection("relations"),
		log:       logrus.WithField("component", "graph_mongo"),
	}, nil
}

type memoryDoc struct {
	ID          string         `bson:"_id"`
	Content     string         `bson:"content"`
	MemoryType  string         `bson:"memory_type"`
	Priority    string         `bson:"priority"`
	UserID      string         `bson:"user_id"`
	EntityType  string         `bson:"entity_type"`
	EntityValue string         `bson:"entity_value"`
	Confidence  float64        `bson:"confidence"`
	Status      string         `bson:"status"`
	Metadata    map[string]any `bson:"metadata"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
	AccessedAt  time.Time      `bson:"accessed_at"`
	AccessCount int64          `bson:"access_count"`
}

func toDoc(rec *Record) memoryDoc {
	return memoryDoc{
		ID:          rec.ID,
		Content:     rec.Content,
		MemoryType:  string(rec.MemoryType),
		Priority:    string(rec.Priority),
		UserID:      rec.UserID,
		EntityType:  rec.EntityType,
		EntityValue: rec.EntityValue,
		Confidence:  rec.Confidence,
		Status:      string(rec.Status),
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		AccessedAt:  rec.AccessedAt,
		AccessCount: rec.AccessCount,
	}
}

func fromDoc(d memoryDoc) *Record {
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &Record{
		ID:          d.ID,
		Content:     d.Content,
		MemoryType:  Type(d.MemoryType),
		Priority:    Priority(d.Priority),
		UserID:      d.UserID,
		EntityType:  d.EntityType,
		EntityValue: d.EntityValue,
		Confidence:  d.Confidence,
		Status:      Status(d.Status),
		Metadata:    meta,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		AccessedAt:  d.AccessedAt,
		AccessCount: d.AccessCount,
	}
}

// Store inserts or replaces the memory document.
func (g *MongoGraph) Store(ctx context.Context, rec *Record) bool {
	doc := toDoc(rec)
	opts := options.Replace().SetUpsert(true)
	if _, err := g.memories.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, opts); err != nil {
		g.log.WithError(err).WithField("id", rec.ID).Warn("store failed")
		return false
	}
	return true
}

// Retrieve fetches the memory document by id.
func (g *MongoGraph) Retrieve(ctx context.Context, id string) *Record {
	var doc memoryDoc
	if err := g.memories.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err != mongo.ErrNoDocuments {
			g.log.WithError(err).WithField("id", id).Warn("retrieve failed")
		}
		return nil
	}
	return fromDoc(doc)
}

// Update replaces the document, preserving created_at.
func (g *MongoGraph) Update(ctx context.Context, rec *Record) bool {
	return g.Store(ctx, rec)
}

// Delete removes the document by id.
func (g *MongoGraph) Delete(ctx context.Context, id string) bool {
	res, err := g.memories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		g.log.WithError(err).WithField("id", id).Warn("delete failed")
		return false
	}
	return res.DeletedCount > 0
}

// Search is a case-insensitive substring match over the content of active
// documents; no memory_type filter is applied.
func (g *MongoGraph) Search(ctx context.Context, query string, limit int) []*Record {
	if limit <= 0 {
		limit = 10
	}
	filter := bson.M{
		"content": bson.M{"$regex": escapeRegex(query), "$options": "i"},
		"status":  string(StatusActive),
	}
	cur, err := g.memories.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		g.log.WithError(err).Warn("search failed")
		return nil
	}
	defer cur.Close(ctx)
	var out []*Record
	for cur.Next(ctx) {
		var doc memoryDoc
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		out = append(out, fromDoc(doc))
	}
	return out
}

func escapeRegex(s string) string {
	special := `\.+*?()|[]{}^$`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UpsertEntity stores or updates a graph node keyed by its unique key.
func (g *MongoGraph) UpsertEntity(ctx context.Context, key, name, entityType string, attrs map[string]any) bool {
	doc := bson.M{
		"_key":       key,
		"name":       name,
		"type":       entityType,
		"attributes": attrs,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := g.entities.ReplaceOne(ctx, bson.M{"_key": key}, doc, opts); err != nil {
		g.log.WithError(err).WithField("key", key).Warn("upsert entity failed")
		return false
	}
	return true
}

// UpsertRelation stores a directed relation edge between two entity keys.
func (g *MongoGraph) UpsertRelation(ctx context.Context, from, to, relType string) bool {
	doc := bson.M{"from": from, "to": to, "type": relType}
	filter := bson.M{"from": from, "to": to, "type": relType}
	opts := options.Replace().SetUpsert(true)
	if _, err := g.relations.ReplaceOne(ctx, filter, doc, opts); err != nil {
		g.log.WithError(err).WithField("from", from).WithField("to", to).Warn("upsert relation failed")
		return false
	}
	return true
}

// Neighbors returns entities within depth hops of entityKey, each carrying
// up to 5 memory records whose content contains the neighbor's name.
func (g *MongoGraph) Neighbors(ctx context.Context, entityKey string, depth int) []EntityRef {
	if depth <= 0 {
		depth = 1
	}
	frontier := []string{entityKey}
	visited := map[string]bool{entityKey: true}
	var refs []EntityRef
	for d := 0; d < depth; d++ {
		var next []string
		cur, err := g.relations.Find(ctx, bson.M{"from": bson.M{"$in": frontier}})
		if err != nil {
			g.log.WithError(err).Warn("neighbors scan failed")
			break
		}
		for cur.Next(ctx) {
			var rel struct {
				From string `bson:"from"`
				To   string `bson:"to"`
			}
			if err := cur.Decode(&rel); err != nil {
				continue
			}
			if !visited[rel.To] {
				visited[rel.To] = true
				next = append(next, rel.To)
			}
		}
		cur.Close(ctx)
		frontier = next
	}
	for key := range visited {
		if key == entityKey {
			continue
		}
		var ent struct {
			Key  string `bson:"_key"`
			Name string `bson:"name"`
			Type string `bson:"type"`
		}
		if err := g.entities.FindOne(ctx, bson.M{"_key": key}).Decode(&ent); err != nil {
			continue
		}
		records := g.Search(ctx, ent.Name, 5)
		refs = append(refs, EntityRef{Key: ent.Key, Name: ent.Name, Type: ent.Type, Records: records})
	}
	return refs
}

// FindEntitiesByText resolves candidate entities whose name appears in text,
// the first stage of the hybrid RAG engine's graph track. Only the first
// limit*4 entity documents are scanned; entities beyond them are not matched.
func (g *MongoGraph) FindEntitiesByText(ctx context.Context, text string, limit int) []EntityRef {
	if limit <= 0 {
		limit = 10
	}
	cur, err := g.entities.Find(ctx, bson.M{}, options.Find().SetLimit(int64(limit*4)))
	if err != nil {
		g.log.WithError(err).Warn("entity scan failed")
		return nil
	}
	defer cur.Close(ctx)
	var refs []EntityRef
	lower := strings.ToLower(text)
	for cur.Next(ctx) {
		var ent struct {
			Key  string `bson:"_key"`
			Name string `bson:"name"`
			Type string `bson:"type"`
		}
		if err := cur.Decode(&ent); err != nil {
			continue
		}
		if ent.Name == "" || !strings.Contains(lower, strings.ToLower(ent.Name)) {
			continue
		}
		refs = append(refs, EntityRef{Key: ent.Key, Name: ent.Name, Type: ent.Type, Records: g.Search(ctx, ent.Name, 5)})
		if len(refs) >= limit {
			break
		}
	}
	return refs
}

// Close disconnects from MongoDB.
func (g *MongoGraph) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.client.Disconnect(ctx)
}
