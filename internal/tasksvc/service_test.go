package tasksvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftDeleteThenRestoreClearsTimestamps(t *testing.T) {
	s := New()
	s.Put(&Task{ID: "t1", UserID: "u1", Status: StatusActivate})

	require.NoError(t, s.SoftDelete("u1", "t1"))
	task := s.Get("u1", "t1")
	require.NotNil(t, task)
	assert.Equal(t, StatusTrash, task.Status)
	require.NotNil(t, task.DeletedAt)
	require.NotNil(t, task.PermanentDeleteAt)
	assert.InDelta(t, trashRetention.Seconds(), task.PermanentDeleteAt.Sub(*task.DeletedAt).Seconds(), 2)

	require.NoError(t, s.Restore("u1", "t1"))
	task = s.Get("u1", "t1")
	require.NotNil(t, task)
	assert.Equal(t, StatusActivate, task.Status)
	assert.Nil(t, task.DeletedAt)
	assert.Nil(t, task.PermanentDeleteAt)
}

func TestPermanentDeleteRequiresTrash(t *testing.T) {
	s := New()
	s.Put(&Task{ID: "t2", UserID: "u1", Status: StatusActivate})

	err := s.PermanentDelete("u1", "t2")
	assert.Error(t, err)

	require.NoError(t, s.SoftDelete("u1", "t2"))
	require.NoError(t, s.PermanentDelete("u1", "t2"))
	assert.Nil(t, s.Get("u1", "t2"))
}

func TestListExcludesTrashUnlessArchivedRequested(t *testing.T) {
	s := New()
	s.Put(&Task{ID: "t3", UserID: "u1", Status: StatusActivate})
	s.Put(&Task{ID: "t4", UserID: "u1", Status: StatusActivate})
	require.NoError(t, s.SoftDelete("u1", "t4"))

	active := s.List("u1", false)
	assert.Len(t, active, 1)
	assert.Equal(t, "t3", active[0].ID)

	all := s.List("u1", true)
	assert.Len(t, all, 2)
}

func TestCleanupExpiredTrashPurgesOnlyPastDeadline(t *testing.T) {
	s := New()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	s.Put(&Task{ID: "t5", UserID: "u1", Status: StatusTrash, PermanentDeleteAt: &past})
	s.Put(&Task{ID: "t6", UserID: "u1", Status: StatusTrash, PermanentDeleteAt: &future})

	purged := s.CleanupExpiredTrash()
	assert.Equal(t, 1, purged)
	assert.Nil(t, s.Get("u1", "t5"))
	assert.NotNil(t, s.Get("u1", "t6"))
}

func TestSoftDeleteUnknownTaskErrors(t *testing.T) {
	s := New()
	assert.Error(t, s.SoftDelete("u1", "missing"))
	assert.Error(t, s.Restore("u1", "missing"))
}
