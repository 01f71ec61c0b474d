// Package retrieval implements the real-time retrieval service: a
// cache-checked, per-tier parallel search pipeline over the memory package's
// AAM core, generalizing the teacher's VectorSearcher/KeywordSearcher/
// ResultFuser trio into a tier-agnostic relevance-scored pipeline.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

// Config tunes the pipeline's cache TTL, worker pool size and per-tier timeout.
type Config struct {
	CacheTTL      time.Duration
	PoolSize      int
	TierTimeout   time.Duration
}

// DefaultConfig matches the documented defaults: 300s cache TTL, 4 workers,
// 5s per-tier timeout.
func DefaultConfig() Config {
	return Config{
		CacheTTL:    300 * time.Second,
		PoolSize:    4,
		TierTimeout: 5 * time.Second,
	}
}

type cacheEntry struct {
	results []*memory.Record
	at      time.Time
}

// Service is the real-time retrieval pipeline.
type Service struct {
	aam    *memory.AAM
	cfg    Config
	pool   *ants.Pool
	mu     sync.Mutex
	cache  map[string]cacheEntry
	log    *logrus.Entry
}

// New builds a retrieval service over the given AAM core.
func New(aam *memory.AAM, cfg Config) (*Service, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		aam:   aam,
		cfg:   cfg,
		pool:  pool,
		cache: make(map[string]cacheEntry),
		log:   logrus.WithField("component", "retrieval_service"),
	}, nil
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

func cacheKey(query string, context []string) string {
	sorted := append([]string(nil), context...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Query runs the cache-check -> parallel per-tier search -> relevance score
// -> sort -> filter/trim pipeline.
func (s *Service) Query(ctx context.Context, query string, contextTerms []string, memType memory.Type, limit int, minRelevance float64) []*memory.Record {
	key := cacheKey(query, contextTerms)
	if cached, ok := s.fromCache(key); ok {
		return trimAndMark(cached, limit)
	}

	tiers := []memory.Type{memType}
	if memType == "" {
		tiers = []memory.Type{memory.ShortTerm, memory.LongTerm}
	}

	var (
		mu     sync.Mutex
		merged []*memory.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, tier := range tiers {
		tier := tier
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, s.cfg.TierTimeout)
			defer cancel()
			run := func() {
				results := s.aam.SearchMemories(tctx, query, tier, limit*2, 0)
				if tctx.Err() != nil {
					s.log.WithField("tier", tier).Warn("tier search timed out")
					return
				}
				for _, r := range results {
					r.RelevanceScore = score(r)
				}
				mu.Lock()
				merged = append(merged, results...)
				mu.Unlock()
			}
			done := make(chan struct{})
			if err := s.pool.Submit(func() { defer close(done); run() }); err != nil {
				s.log.WithError(err).WithField("tier", tier).Warn("submit failed, running inline")
				run()
				return nil
			}
			select {
			case <-done:
			case <-tctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].RelevanceScore != merged[j].RelevanceScore {
			return merged[i].RelevanceScore > merged[j].RelevanceScore
		}
		if merged[i].Priority.Rank() != merged[j].Priority.Rank() {
			return merged[i].Priority.Rank() > merged[j].Priority.Rank()
		}
		return merged[i].AccessedAt.After(merged[j].AccessedAt)
	})

	filtered := lo.Filter(merged, func(r *memory.Record, _ int) bool {
		return r.RelevanceScore >= minRelevance
	})

	s.toCache(key, filtered)
	return trimAndMark(filtered, limit)
}

func trimAndMark(results []*memory.Record, limit int) []*memory.Record {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for _, r := range results {
		r.Touch()
	}
	return results
}

// score computes relevance = base_relevance + priority_bonus + access_bonus
// + recency_bonus, clamped to [0,1]. base_relevance is whatever the adapter
// already populated in RelevanceScore (embedding similarity or term overlap).
func score(r *memory.Record) float64 {
	base := r.RelevanceScore
	priorityBonus := r.Priority.Bonus()
	accessBonus := 0.01 * float64(r.AccessCount)
	if accessBonus > 0.1 {
		accessBonus = 0.1
	}
	deltaDays := time.Since(r.AccessedAt).Hours() / 24
	recencyBonus := 0.1 * (1 - deltaDays)
	if recencyBonus < 0 {
		recencyBonus = 0
	}
	total := base + priorityBonus + accessBonus + recencyBonus
	if total > 1 {
		total = 1
	}
	if total < 0 {
		total = 0
	}
	return total
}

func (s *Service) fromCache(key string) ([]*memory.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.at) > s.cfg.CacheTTL {
		return nil, false
	}
	return entry.results, true
}

func (s *Service) toCache(key string, results []*memory.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{results: results, at: time.Now()}
}
