package deletion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeleteFileAllSucceedCompletesTransaction(t *testing.T) {
	m := New("task-1", "user-1")
	ops := map[Kind]DeleteFunc{
		KindVector:     func(string) error { return nil },
		KindKGEntity:   func(string) error { return nil },
		KindKGRelation: func(string) error { return nil },
		KindMetadata:   func(string) error { return nil },
		KindFile:       func(string) error { return nil },
	}
	m.DeleteFile("file-1", ops)
	tx := m.Complete()

	assert.Equal(t, TxCompleted, tx.Status)
	report := m.RollbackReport()
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.SuccessCount)
	assert.Equal(t, 0, report.FailedCount)
	assert.Equal(t, []string{"All deletion operations completed successfully."}, report.Recommendations)
}

func TestDeleteFilePartialFailureMarksPartiallyFailed(t *testing.T) {
	m := New("task-2", "user-1").WithRetryPolicy(1, time.Millisecond)
	ops := map[Kind]DeleteFunc{
		KindVector:     func(string) error { return errors.New("qdrant unreachable") },
		KindKGEntity:   func(string) error { return nil },
		KindKGRelation: func(string) error { return nil },
		KindMetadata:   func(string) error { return nil },
		KindFile:       func(string) error { return nil },
	}
	m.DeleteFile("file-2", ops)
	tx := m.Complete()

	assert.Equal(t, TxPartiallyFailed, tx.Status)
	report := m.RollbackReport()
	assert.Equal(t, report.Total, report.SuccessCount+report.FailedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Contains(t, report.Recommendations[0], "vector deletion failed for 1 file")
}

func TestDeleteFileAllFailMarksFailed(t *testing.T) {
	m := New("task-3", "user-1").WithRetryPolicy(1, time.Millisecond)
	ops := map[Kind]DeleteFunc{
		KindVector:     func(string) error { return errors.New("x") },
		KindKGEntity:   func(string) error { return errors.New("x") },
		KindKGRelation: func(string) error { return errors.New("x") },
		KindMetadata:   func(string) error { return errors.New("x") },
		KindFile:       func(string) error { return errors.New("x") },
	}
	m.DeleteFile("file-3", ops)
	tx := m.Complete()

	assert.Equal(t, TxFailed, tx.Status)
	report := m.RollbackReport()
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 0, report.SuccessCount)
	assert.Equal(t, 5, report.FailedCount)
	assert.Equal(t, report.Total, report.SuccessCount+report.FailedCount)
}

func TestExecuteRetriesBeforeFailing(t *testing.T) {
	m := New("task-4", "user-1").WithRetryPolicy(3, time.Millisecond)
	attempts := 0
	ok := m.Execute("file-4", KindVector, func(string) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)
}

func TestDeleteFolderAndTask(t *testing.T) {
	m := New("task-5", "user-1")
	assert.True(t, m.DeleteFolder("folder-1", func(string) error { return nil }))
	assert.True(t, m.DeleteTask("task-5", func(string) error { return nil }))

	tx := m.Complete()
	assert.Equal(t, TxCompleted, tx.Status)
	assert.Len(t, tx.Operations, 2)
	assert.Equal(t, KindFolder, tx.Operations[0].Kind)
	assert.Equal(t, KindTask, tx.Operations[1].Kind)
}
