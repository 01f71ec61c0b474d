package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

func seedRecord(adapter *memory.InMemoryAdapter, id, userID string, age time.Duration, accessCount int64) {
	rec := memory.New("some fact", memory.LongTerm, memory.PriorityMedium)
	rec.ID = id
	rec.UserID = userID
	rec.CreatedAt = time.Now().Add(-age)
	rec.UpdatedAt = time.Now().Add(-age)
	rec.AccessCount = accessCount
	adapter.Store(context.Background(), rec)
}

func TestRunWeeklyReviewArchivesLowHotnessRecord(t *testing.T) {
	adapter := memory.NewInMemoryAdapter()
	seedRecord(adapter, "mem-1", "user-1", 100*24*time.Hour, 1)

	job := New(adapter, DefaultConfig())
	reports := job.RunWeeklyReview(context.Background())

	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, "user-1", report.UserID)
	assert.GreaterOrEqual(t, report.ArchivedCount, 1)

	rec := adapter.Retrieve(context.Background(), "mem-1")
	require.NotNil(t, rec)
	assert.Equal(t, memory.StatusArchived, rec.Status)
}

func TestRunWeeklyReviewFlagsStaleRecordForReview(t *testing.T) {
	adapter := memory.NewInMemoryAdapter()
	// Old enough to be stale (>180d), but accessed enough to dodge archival.
	seedRecord(adapter, "mem-2", "user-2", 200*24*time.Hour, 10)

	job := New(adapter, DefaultConfig())
	reports := job.RunWeeklyReview(context.Background())

	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, 1, report.PotentiallyStaleCount)
	assert.Equal(t, 1, report.ReviewCount)

	rec := adapter.Retrieve(context.Background(), "mem-2")
	require.NotNil(t, rec)
	assert.Equal(t, memory.StatusReview, rec.Status)
	assert.Contains(t, rec.Metadata["review_reason"], "still being accessed")
}

func TestRunWeeklyReviewNoUsersReturnsEmpty(t *testing.T) {
	adapter := memory.NewInMemoryAdapter()
	job := New(adapter, DefaultConfig())
	reports := job.RunWeeklyReview(context.Background())
	assert.Empty(t, reports)
}

func TestRunWeeklyReviewGeneratesSuggestions(t *testing.T) {
	adapter := memory.NewInMemoryAdapter()
	seedRecord(adapter, "mem-3", "user-3", 100*24*time.Hour, 1)

	job := New(adapter, DefaultConfig())
	reports := job.RunWeeklyReview(context.Background())

	require.Len(t, reports, 1)
	assert.NotEmpty(t, reports[0].Suggestions)
}
