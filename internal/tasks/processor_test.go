package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, p *Processor, id string, want Status) Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task := p.GetTask(id)
		require.NotNil(t, task)
		if task.Status == want {
			return *task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", id, want)
	return Task{}
}

func TestSubmitCompletesSuccessfully(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)
	defer p.Release()

	id := p.Submit("embed", PriorityMedium, map[string]any{"n": 1}, func(ctx context.Context) (any, error) {
		return "done", nil
	})

	waitForStatus(t, p, id, Completed)
	result, err := p.GetTaskResult(id)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestSubmitFailurePropagatesError(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Release()

	id := p.Submit("embed", PriorityLow, nil, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	task := waitForStatus(t, p, id, Failed)
	assert.EqualError(t, task.Err, "boom")

	_, err = p.GetTaskResult(id)
	assert.Error(t, err)
}

func TestGetTaskResultBeforeCompletionErrors(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	id := p.Submit("embed", PriorityMedium, nil, func(ctx context.Context) (any, error) {
		<-block
		return "ok", nil
	})

	_, err = p.GetTaskResult(id)
	assert.Error(t, err)
	close(block)
	waitForStatus(t, p, id, Completed)
}

func TestCancelTaskPendingNeverRuns(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	defer close(block)
	_ = p.Submit("embed", PriorityMedium, nil, func(ctx context.Context) (any, error) {
		<-block
		return "first", nil
	})

	ran := false
	id := p.Submit("embed", PriorityMedium, nil, func(ctx context.Context) (any, error) {
		ran = true
		return "second", nil
	})

	ok := p.CancelTask(id)
	assert.True(t, ok)

	task := p.GetTask(id)
	assert.Equal(t, Cancelled, task.Status)
	assert.False(t, ran)
}

func TestCancelUnknownTaskReturnsFalse(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Release()

	assert.False(t, p.CancelTask("nonexistent"))
}

func TestListTasksFiltersAndOrdersByPriority(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	defer close(block)

	lowID := p.Submit("embed", PriorityLow, nil, func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})
	highID := p.Submit("reindex", PriorityHigh, nil, func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})

	tasks := p.ListTasks("", "")
	require.Len(t, tasks, 2)
	assert.Equal(t, highID, tasks[0].ID)
	assert.Equal(t, lowID, tasks[1].ID)

	filtered := p.ListTasks("", "reindex")
	require.Len(t, filtered, 1)
	assert.Equal(t, highID, filtered[0].ID)
}
