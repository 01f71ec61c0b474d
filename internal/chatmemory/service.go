// Package chatmemory implements the per-turn chat memory service (C8): a
// consent gate, a hybrid RAG call, AAM long-term search, an injection
// formatter, and write-back of the turn snippet, composing internal/rag and
// internal/memory.
package chatmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentic-memory/aam-platform/internal/memory"
	"github.com/agentic-memory/aam-platform/internal/rag"
)

// Config tunes the per-turn pipeline's limits.
type Config struct {
	RAGTopK            int
	AAMTopK            int
	MinRelevance       float64
	MaxInjectionChars  int
	MaxLineChars       int
	MaxSnippetChars    int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		RAGTopK:           5,
		AAMTopK:           5,
		MinRelevance:      0.2,
		MaxInjectionChars: 1800,
		MaxLineChars:      280,
		MaxSnippetChars:   800,
	}
}

// ConsentChecker gates whether memory read/write is allowed for a user.
type ConsentChecker interface {
	HasConsent(ctx context.Context, userID string) bool
}

// Attachment references a file the user turn is grounded in.
type Attachment struct {
	FileID string
}

// Embedder produces an embedding for a text, used to embed the turn's query
// for the hybrid RAG call. The per-file top-up path runs only when an
// Embedder is set, but does not call it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is the per-turn output: the formatted injection plus observability.
type Result struct {
	InjectionMessages   []string
	MemoryHitCount      int
	MemorySources       []string
	RetrievalLatencyMS  int64
}

// Service composes the hybrid RAG engine and the AAM core into the
// single-call-per-turn chat memory pipeline.
type Service struct {
	consent  ConsentChecker
	rag      *rag.Engine
	aam      *memory.AAM
	embedder Embedder
	cfg      Config
	log      *logrus.Entry
}

// New builds the chat memory service.
func New(consent ConsentChecker, ragEngine *rag.Engine, aam *memory.AAM, embedder Embedder, cfg Config) *Service {
	return &Service{
		consent:  consent,
		rag:      ragEngine,
		aam:      aam,
		embedder: embedder,
		cfg:      cfg,
		log:      logrus.WithField("component", "chatmemory_service"),
	}
}

// Retrieve runs the gate -> hybrid RAG -> AAM long-term -> injection format
// pipeline for one user turn. If consent fails, it returns an empty result
// and performs no memory read.
func (s *Service) Retrieve(ctx context.Context, userID, sessionID, query string, attachments []Attachment) Result {
	start := time.Now()
	if s.consent != nil && !s.consent.HasConsent(ctx, userID) {
		s.log.WithField("user_id", userID).Info("consent denied, skipping memory retrieval")
		return Result{InjectionMessages: nil, MemoryHitCount: 0, MemorySources: []string{}, RetrievalLatencyMS: 0}
	}

	var vectorLines, graphLines, aamLines []string
	sources := map[string]bool{}

	if s.rag != nil && s.embedder != nil {
		if embedding, err := s.embedder.Embed(ctx, query); err == nil {
			hits := s.rag.Query(ctx, userID, query, embedding, rag.Hybrid, s.cfg.RAGTopK)
			for _, h := range hits {
				line := clip(h.Record.Content, s.cfg.MaxLineChars)
				if h.VectorScore >= h.GraphScore {
					vectorLines = append(vectorLines, line)
					sources["vector"] = true
				} else {
					graphLines = append(graphLines, line)
					sources["graph"] = true
				}
			}
		} else {
			s.log.WithError(err).Warn("embed query failed, skipping RAG")
		}
	}

	if len(vectorLines) == 0 && len(graphLines) == 0 && s.embedder != nil {
		vectorLines = s.fileTopUp(ctx, userID, query, attachments)
		if len(vectorLines) > 0 {
			sources["vector"] = true
		}
	}

	if s.aam != nil {
		matches := s.aam.SearchMemories(ctx, query, memory.LongTerm, s.cfg.AAMTopK, s.cfg.MinRelevance)
		for _, m := range matches {
			if m.UserID != userID {
				continue
			}
			aamLines = append(aamLines, clip(m.Content, s.cfg.MaxLineChars))
			sources["aam"] = true
		}
	}

	messages := formatInjection(aamLines, vectorLines, graphLines, s.cfg.MaxInjectionChars)

	sourceList := make([]string, 0, len(sources))
	for src := range sources {
		sourceList = append(sourceList, src)
	}

	return Result{
		InjectionMessages:  messages,
		MemoryHitCount:     len(aamLines) + len(vectorLines) + len(graphLines),
		MemorySources:      sourceList,
		RetrievalLatencyMS: time.Since(start).Milliseconds(),
	}
}

// fileTopUp is the per-file top-up path used when hybrid RAG is disabled or
// returned nothing: one long-term memory search per attachment (records
// tagged with a different file_id are skipped), merged and sorted by
// descending relevance, top rag_top_k kept.
func (s *Service) fileTopUp(ctx context.Context, userID, query string, attachments []Attachment) []string {
	if len(attachments) == 0 || s.aam == nil {
		return nil
	}
	var records []*memory.Record
	for _, att := range attachments {
		matches := s.aam.SearchMemories(ctx, query, memory.LongTerm, s.cfg.RAGTopK, 0)
		for _, m := range matches {
			if m.UserID != "" && m.UserID != userID {
				continue
			}
			if fileID, ok := m.Metadata["file_id"].(string); ok && fileID != att.FileID {
				continue
			}
			records = append(records, m)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RelevanceScore > records[j].RelevanceScore
	})
	if len(records) > s.cfg.RAGTopK {
		records = records[:s.cfg.RAGTopK]
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, clip(r.Content, s.cfg.MaxLineChars))
	}
	return lines
}

// WriteBack stores the turn as a long_term memory after the LLM turn completes.
func (s *Service) WriteBack(ctx context.Context, userID, sessionID, userTurn, assistantTurn string) string {
	if s.aam == nil {
		return ""
	}
	snippet := fmt.Sprintf("user: %s / assistant: %s", clip(userTurn, s.cfg.MaxSnippetChars), clip(assistantTurn, s.cfg.MaxSnippetChars))
	return s.aam.StoreMemory(ctx, snippet, memory.LongTerm, memory.PriorityMedium, map[string]any{
		"user_id": userID,
		"session_id": sessionID,
		"source":  "chat_product",
		"kind":    "turn_snippet",
	}, "")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

const preamble = "The following retrieved context is advisory; explicit user instructions take precedence."

// formatInjection emits up to three labeled sections, each line clipped,
// the whole block clipped to maxTotal.
func formatInjection(aam, vector, graph []string, maxTotal int) []string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")
	appendSection(&b, "[Memory-AAM]", aam)
	appendSection(&b, "[RAG-Vector]", vector)
	appendSection(&b, "[RAG-Graph]", graph)

	block := b.String()
	if len(block) > maxTotal {
		block = block[:maxTotal]
	}
	if strings.TrimSpace(block) == strings.TrimSpace(preamble) {
		return nil
	}
	return []string{block}
}

func appendSection(b *strings.Builder, label string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
}
