package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

func TestServiceQueryScoresAndSorts(t *testing.T) {
	ctx := context.Background()
	aam := memory.NewAAM(memory.NewInMemoryAdapter(), memory.NewInMemoryAdapter(), nil)
	aam.StoreMemory(ctx, "rotor blade inspection notes", memory.ShortTerm, memory.PriorityLow, map[string]any{}, "")
	aam.StoreMemory(ctx, "rotor blade torque spec", memory.LongTerm, memory.PriorityCritical, map[string]any{}, "")

	svc, err := New(aam, DefaultConfig())
	require.NoError(t, err)
	defer svc.Close()

	results := svc.Query(ctx, "rotor blade", nil, "", 10, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, memory.PriorityCritical, results[0].Priority)
}

func TestServiceQueryUsesCacheOnSecondCall(t *testing.T) {
	ctx := context.Background()
	aam := memory.NewAAM(memory.NewInMemoryAdapter(), nil, nil)
	aam.StoreMemory(ctx, "cached content", memory.ShortTerm, memory.PriorityMedium, map[string]any{}, "")

	svc, err := New(aam, DefaultConfig())
	require.NoError(t, err)
	defer svc.Close()

	first := svc.Query(ctx, "cached", nil, memory.ShortTerm, 5, 0)
	second := svc.Query(ctx, "cached", nil, memory.ShortTerm, 5, 0)
	assert.Equal(t, len(first), len(second))
}

func TestServiceQueryFiltersByMinRelevance(t *testing.T) {
	ctx := context.Background()
	aam := memory.NewAAM(memory.NewInMemoryAdapter(), nil, nil)
	aam.StoreMemory(ctx, "totally unrelated text", memory.ShortTerm, memory.PriorityLow, map[string]any{}, "")

	svc, err := New(aam, DefaultConfig())
	require.NoError(t, err)
	defer svc.Close()

	results := svc.Query(ctx, "nonmatching query terms", nil, memory.ShortTerm, 5, 0.9)
	assert.Empty(t, results)
}
