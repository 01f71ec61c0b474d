package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAAMStoreRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)

	id := aam.StoreMemory(ctx, "the part number is ABC-123", LongTerm, PriorityHigh, map[string]any{
		"user_id": "u1", "entity_type": "part_number", "entity_value": "ABC-123",
	}, "")
	require.NotEmpty(t, id)

	rec := aam.RetrieveMemory(ctx, id, "")
	require.NotNil(t, rec)
	assert.Equal(t, "the part number is ABC-123", rec.Content)
	assert.Equal(t, int64(1), rec.AccessCount)
}

func TestAAMRetrieveAccessCountMonotonic(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)
	id := aam.StoreMemory(ctx, "hello", ShortTerm, PriorityLow, map[string]any{}, "")

	var last int64
	for i := 0; i < 3; i++ {
		rec := aam.RetrieveMemory(ctx, id, ShortTerm)
		require.NotNil(t, rec)
		assert.GreaterOrEqual(t, rec.AccessCount, last)
		last = rec.AccessCount
	}
}

func TestAAMUpdateAdvancesUpdatedAtKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)
	id := aam.StoreMemory(ctx, "v1", ShortTerm, PriorityMedium, map[string]any{}, "")
	before := aam.RetrieveMemory(ctx, id, ShortTerm)
	createdAt := before.CreatedAt

	time.Sleep(time.Millisecond)
	newContent := "v2"
	ok := aam.UpdateMemory(ctx, id, ShortTerm, &newContent, nil, nil)
	require.True(t, ok)

	after := aam.RetrieveMemory(ctx, id, ShortTerm)
	assert.Equal(t, "v2", after.Content)
	assert.Equal(t, createdAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt) || after.UpdatedAt.Equal(before.UpdatedAt))
}

func TestAAMDeleteMemoryAnyTier(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)
	id := aam.StoreMemory(ctx, "to delete", LongTerm, PriorityLow, map[string]any{}, "")

	assert.True(t, aam.DeleteMemory(ctx, id, ""))
	assert.Nil(t, aam.RetrieveMemory(ctx, id, ""))
}

func TestAAMSearchMemoriesMergesAndSortsByPriority(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)
	aam.StoreMemory(ctx, "about widgets", ShortTerm, PriorityLow, map[string]any{}, "")
	aam.StoreMemory(ctx, "about widgets too", LongTerm, PriorityCritical, map[string]any{}, "")

	results := aam.SearchMemories(ctx, "widgets", "", 10, 0)
	require.Len(t, results, 2)
	assert.Equal(t, PriorityCritical, results[0].Priority)
}

func TestAAMIncrementalUpdateAppendsAndMerges(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(NewInMemoryAdapter(), NewInMemoryAdapter(), nil)
	id := aam.StoreMemory(ctx, "line one", ShortTerm, PriorityLow, map[string]any{"a": 1}, "")

	ok := aam.IncrementalUpdate(ctx, id, "line two", map[string]any{"b": 2})
	require.True(t, ok)

	rec := aam.RetrieveMemory(ctx, id, ShortTerm)
	assert.Equal(t, "line one\nline two", rec.Content)
	assert.Equal(t, 1, rec.Metadata["a"])
	assert.Equal(t, 2, rec.Metadata["b"])
}

func TestAAMStoreMemoryDisabledTierReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	aam := NewAAM(nil, NewInMemoryAdapter(), nil)
	id := aam.StoreMemory(ctx, "x", ShortTerm, PriorityLow, map[string]any{}, "")
	assert.Empty(t, id)
}
