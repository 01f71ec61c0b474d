package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

func rec(id string, score float64) *memory.Record {
	return &memory.Record{ID: id, RelevanceScore: score}
}

func TestFuseMatchesWeightedMergeScenario(t *testing.T) {
	e := New(nil, nil, DefaultConfig())

	vectorHits := []*memory.Record{rec("M1", 0.8), rec("M2", 0.6)}
	graphHits := []*memory.Record{rec("M2", 0.5), rec("M3", 0.4)}

	hits := e.fuse(vectorHits, graphHits)
	require.Len(t, hits, 3)

	byID := map[string]Hit{}
	for _, h := range hits {
		byID[h.Record.ID] = h
	}

	assert.InDelta(t, 0.48, byID["M1"].Fused, 1e-9)
	assert.InDelta(t, 0.56, byID["M2"].Fused, 1e-9)
	assert.InDelta(t, 0.16, byID["M3"].Fused, 1e-9)
}

func TestSubTokensDropsStopWordsAndPrefers3CharGrams(t *testing.T) {
	stop := defaultStopWords()
	tokens := subTokens("供應鏈風險", stop)
	require.NotEmpty(t, tokens)
	for _, tok := range tokens {
		assert.Len(t, []rune(tok), 3)
		assert.False(t, stop[tok])
	}
}

func TestSubTokensFallsBackToPunctuationSplit(t *testing.T) {
	stop := defaultStopWords()
	tokens := subTokens("的", stop)
	assert.Empty(t, tokens)

	tokens = subTokens("item-123, part/456", stop)
	assert.Contains(t, tokens, "item-123")
	assert.Contains(t, tokens, "part")
	assert.Contains(t, tokens, "456")
}

func TestRuleNERExtractsPatternAndKeywordEntities(t *testing.T) {
	ner := NewRuleNER()
	entities := ner.Extract(context.Background(), "WC77工作站生產的料號是81199GG01080嗎")

	var types []string
	for _, e := range entities {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, "workstation")
	assert.Contains(t, types, "part_number")
}
