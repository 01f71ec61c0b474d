package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndGetHistory(t *testing.T) {
	s := New(NewInProcessBackend(), time.Hour)
	_, err := s.Record("sess1", RoleUser, "hello", nil)
	require.NoError(t, err)
	_, err = s.Record("sess1", RoleAssistant, "hi there", nil)
	require.NoError(t, err)

	history := s.GetHistory("sess1", 0, "")
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
}

func TestGetConversationContextShapesTurns(t *testing.T) {
	s := New(NewInProcessBackend(), time.Hour)
	s.Record("sess1", RoleUser, "q1", nil)
	s.Record("sess1", RoleAssistant, "a1", nil)

	turns := s.GetConversationContext("sess1", 0)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestArchiveSessionMovesMessages(t *testing.T) {
	s := New(NewInProcessBackend(), time.Hour)
	s.Record("sess1", RoleUser, "q1", nil)

	ok := s.ArchiveSession("sess1", "")
	assert.True(t, ok)
	assert.Empty(t, s.GetHistory("sess1", 0, ""))
}

func TestCleanupExpiredSessions(t *testing.T) {
	s := New(NewInProcessBackend(), time.Millisecond)
	s.Record("sess1", RoleUser, "q1", nil)
	time.Sleep(5 * time.Millisecond)

	count := s.CleanupExpiredSessions()
	assert.Equal(t, 1, count)
}
