// Package rag implements the hybrid retrieval-augmented generation engine:
// a vector track and a graph track fused by weighted score combination,
// generalizing the teacher's recall_handler.go multi-view retrieval and
// result_fuser.go RRF/weighted fusion into spec-shaped strategies.
package rag

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

// trackTimeout bounds each track's contribution to a hybrid query, per the
// "5s per-track timeout" rule.
const trackTimeout = 5 * time.Second

// Strategy selects which tracks contribute to a query's result set.
type Strategy string

const (
	VectorFirst Strategy = "vector_first"
	GraphFirst  Strategy = "graph_first"
	Hybrid      Strategy = "hybrid"
)

// Config tunes the fusion weights. Defaults match spec scenario S1.
type Config struct {
	VectorWeight float64
	GraphWeight  float64
}

// DefaultConfig returns the documented 0.6/0.4 vector/graph split.
func DefaultConfig() Config {
	return Config{VectorWeight: 0.6, GraphWeight: 0.4}
}

// Engine composes the vector adapter, the graph adapter, the NER provider
// (C3) driving the graph track's entity extraction, and a stop-word list for
// its keyword-match fallback.
type Engine struct {
	vector    memory.VectorAdapter
	graph     memory.GraphAdapter
	ner       NER
	cfg       Config
	stopWords map[string]bool
	log       *logrus.Entry
}

// New builds a hybrid RAG engine. vector or graph may be nil to disable a
// track. The NER provider defaults to RuleNER; call SetNER to plug in a
// different implementation (C3 is pluggable per its component contract).
func New(vector memory.VectorAdapter, graph memory.GraphAdapter, cfg Config) *Engine {
	return &Engine{
		vector:    vector,
		graph:     graph,
		ner:       NewRuleNER(),
		cfg:       cfg,
		stopWords: defaultStopWords(),
		log:       logrus.WithField("component", "rag_engine"),
	}
}

// SetNER swaps the graph track's entity extractor.
func (e *Engine) SetNER(ner NER) {
	e.ner = ner
}

// defaultStopWords is a small Chinese function-word set used to extract
// content terms for the graph track's entity/keyword match, grounded in the
// stop-word handling in hybrid_rag.py's keyword extraction stage.
func defaultStopWords() map[string]bool {
	words := []string{"的", "了", "是", "在", "和", "與", "及", "或", "這", "那", "有", "我", "你", "他", "它"}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Hit is one fused result: a memory record plus its per-track scores.
type Hit struct {
	Record      *memory.Record
	VectorScore float64
	GraphScore  float64
	Fused       float64
}

// Query runs the vector and/or graph tracks in parallel per strategy (each
// bounded by trackTimeout), fuses scores for records returned by both, and
// returns the sorted, deduplicated hit list.
func (e *Engine) Query(ctx context.Context, userID, query string, embedding []float32, strategy Strategy, limit int) []Hit {
	var vectorHits, graphHits []*memory.Record

	g, gctx := errgroup.WithContext(ctx)
	if strategy != GraphFirst && e.vector != nil {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, trackTimeout)
			defer cancel()
			vectorHits = e.vector.(interface {
				SearchByVector(ctx context.Context, userID string, embedding []float32, limit int, filters map[string]string) []*memory.Record
			}).SearchByVector(tctx, userID, embedding, limit*2, nil)
			return nil
		})
	}
	if strategy != VectorFirst && e.graph != nil {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, trackTimeout)
			defer cancel()
			graphHits = e.graphTrack(tctx, query, limit*2)
			return nil
		})
	}
	_ = g.Wait()

	merged := e.fuse(vectorHits, graphHits)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Fused > merged[j].Fused })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// graphTrack extracts named entities from the query via the NER provider
// (C3); for each entity it text-matches the entity table, falling back to a
// keyword match over sub-tokens when the text match is insufficient, then
// collects the attached memory records as pseudo-memories for fusion.
func (e *Engine) graphTrack(ctx context.Context, query string, limit int) []*memory.Record {
	entities := e.ner.Extract(ctx, query)
	if len(entities) == 0 {
		return nil
	}

	var out []*memory.Record
	seen := map[string]bool{}
	collect := func(refs []memory.EntityRef) {
		for _, ref := range refs {
			for _, rec := range ref.Records {
				if seen[rec.ID] {
					continue
				}
				seen[rec.ID] = true
				out = append(out, rec)
			}
		}
	}

	for _, ent := range entities {
		refs := e.findEntitiesByText(ctx, ent.Value, 5)
		if len(refs) == 0 {
			for _, token := range subTokens(ent.Value, e.stopWords) {
				refs = append(refs, e.findEntitiesByText(ctx, token, 5)...)
			}
		}
		collect(refs)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (e *Engine) findEntitiesByText(ctx context.Context, text string, limit int) []memory.EntityRef {
	return e.graph.(interface {
		FindEntitiesByText(ctx context.Context, text string, limit int) []memory.EntityRef
	}).FindEntitiesByText(ctx, text, limit)
}

// fuse combines vector and graph hits by memory id: fused = vectorWeight *
// vectorScore + graphWeight * graphScore, where a missing track contributes 0.
func (e *Engine) fuse(vectorHits, graphHits []*memory.Record) []Hit {
	byID := make(map[string]*Hit)
	order := make([]string, 0, len(vectorHits)+len(graphHits))

	for _, r := range vectorHits {
		h := &Hit{Record: r, VectorScore: r.RelevanceScore}
		byID[r.ID] = h
		order = append(order, r.ID)
	}
	for _, r := range graphHits {
		if h, ok := byID[r.ID]; ok {
			h.GraphScore = r.RelevanceScore
			if h.GraphScore == 0 {
				h.GraphScore = defaultGraphScore
			}
			continue
		}
		score := r.RelevanceScore
		if score == 0 {
			score = defaultGraphScore
		}
		h := &Hit{Record: r, GraphScore: score}
		byID[r.ID] = h
		order = append(order, r.ID)
	}

	return lo.Map(order, func(id string, _ int) Hit {
		h := byID[id]
		h.Fused = e.cfg.VectorWeight*h.VectorScore + e.cfg.GraphWeight*h.GraphScore
		return *h
	})
}

// defaultGraphScore is used when the graph track returns a record without a
// populated relevance score (e.g. a plain substring match).
const defaultGraphScore = 0.5
