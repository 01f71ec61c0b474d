// Package deletion implements the deletion rollback manager (C13): per-file
// sequential kind execution with bounded retry and an aggregated report,
// grounded in deletion_rollback_manager.py from original_source/.
package deletion

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind identifies what a single deletion operation targets.
type Kind string

const (
	KindVector   Kind = "vector"
	KindKGEntity Kind = "kg_entity"
	KindKGRelation Kind = "kg_relation"
	KindMetadata Kind = "metadata"
	KindFile     Kind = "file"
	KindFolder   Kind = "folder"
	KindTask     Kind = "task"
)

// OpStatus is one operation's outcome.
type OpStatus string

const (
	OpPending OpStatus = "pending"
	OpSuccess OpStatus = "success"
	OpFailed  OpStatus = "failed"
)

// Operation records one deletion attempt against one target.
type Operation struct {
	TargetID    string
	Kind        Kind
	Status      OpStatus
	Error       string
	RetryCount  int
	StartedAt   time.Time
	CompletedAt time.Time
}

// TxStatus is the transaction's aggregate outcome.
type TxStatus string

const (
	TxInProgress     TxStatus = "in_progress"
	TxCompleted      TxStatus = "completed"
	TxPartiallyFailed TxStatus = "partially_failed"
	TxFailed         TxStatus = "failed"
)

// Transaction tracks every deletion operation performed for one task.
type Transaction struct {
	TaskID      string
	UserID      string
	StartedAt   time.Time
	CompletedAt time.Time
	Operations  []*Operation
	Status      TxStatus
}

func (t *Transaction) addOperation(targetID string, kind Kind) *Operation {
	op := &Operation{TargetID: targetID, Kind: kind, Status: OpPending, StartedAt: time.Now()}
	t.Operations = append(t.Operations, op)
	return op
}

func (t *Transaction) successCount() int {
	n := 0
	for _, op := range t.Operations {
		if op.Status == OpSuccess {
			n++
		}
	}
	return n
}

func (t *Transaction) failedOperations() []*Operation {
	var failed []*Operation
	for _, op := range t.Operations {
		if op.Status == OpFailed {
			failed = append(failed, op)
		}
	}
	return failed
}

// DeleteFunc performs the actual removal for a kind/target pair.
type DeleteFunc func(targetID string) error

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// Manager executes and tracks the deletion operations for one task,
// retrying each a bounded number of times before recording it as failed.
type Manager struct {
	taskID      string
	userID      string
	tx          *Transaction
	maxRetries  int
	backoff     time.Duration
	log         *logrus.Entry
}

// New builds a deletion manager for one task/user pair.
func New(taskID, userID string) *Manager {
	return &Manager{
		taskID:     taskID,
		userID:     userID,
		tx:         &Transaction{TaskID: taskID, UserID: userID, StartedAt: time.Now(), Status: TxInProgress},
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoff,
		log:        logrus.WithFields(logrus.Fields{"component": "deletion_manager", "task_id": taskID}),
	}
}

// WithRetryPolicy overrides the default retry count/backoff.
func (m *Manager) WithRetryPolicy(maxRetries int, backoff time.Duration) *Manager {
	if maxRetries > 0 {
		m.maxRetries = maxRetries
	}
	if backoff > 0 {
		m.backoff = backoff
	}
	return m
}

func (m *Manager) withRetry(op func() error) (bool, string) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if err := op(); err == nil {
			return true, ""
		} else {
			lastErr = err
			if attempt < m.maxRetries-1 {
				m.log.WithError(err).WithField("attempt", attempt+1).Warn("deletion operation failed, retrying")
				time.Sleep(m.backoff * time.Duration(attempt+1))
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("max retries exceeded")
	}
	return false, lastErr.Error()
}

// Execute runs one deletion operation of the given kind against targetID,
// tracking it through the transaction with bounded retry.
func (m *Manager) Execute(targetID string, kind Kind, fn DeleteFunc) bool {
	op := m.tx.addOperation(targetID, kind)
	ok, errMsg := m.withRetry(func() error { return fn(targetID) })
	op.CompletedAt = time.Now()
	if ok {
		op.Status = OpSuccess
		op.RetryCount = 0
		m.log.WithField("target_id", targetID).WithField("kind", kind).Info("deletion succeeded")
	} else {
		op.Status = OpFailed
		op.Error = errMsg
		op.RetryCount = m.maxRetries
		m.log.WithField("target_id", targetID).WithField("kind", kind).WithField("error", errMsg).Error("deletion failed")
	}
	return ok
}

// DeleteFile runs the full per-file sequence (vector, kg_entity, kg_relation,
// metadata, file) in order, continuing past individual failures so every
// kind is attempted and tracked.
func (m *Manager) DeleteFile(fileID string, ops map[Kind]DeleteFunc) {
	order := []Kind{KindVector, KindKGEntity, KindKGRelation, KindMetadata, KindFile}
	for _, kind := range order {
		fn, ok := ops[kind]
		if !ok {
			continue
		}
		m.Execute(fileID, kind, fn)
	}
}

// DeleteFolder runs the folder-removal step.
func (m *Manager) DeleteFolder(folderID string, fn DeleteFunc) bool {
	return m.Execute(folderID, KindFolder, fn)
}

// DeleteTask runs the final task-removal step.
func (m *Manager) DeleteTask(taskID string, fn DeleteFunc) bool {
	return m.Execute(taskID, KindTask, fn)
}

// Complete finalizes the transaction's aggregate status based on how many
// operations failed relative to the total attempted.
func (m *Manager) Complete() *Transaction {
	m.tx.CompletedAt = time.Now()
	failed := len(m.tx.failedOperations())
	switch {
	case failed == 0:
		m.tx.Status = TxCompleted
	case failed < len(m.tx.Operations):
		m.tx.Status = TxPartiallyFailed
	default:
		m.tx.Status = TxFailed
	}
	return m.tx
}

// Report is the aggregated rollback report surfaced to operators.
type Report struct {
	TaskID           string
	UserID           string
	Status           TxStatus
	Total            int
	SuccessCount     int
	FailedCount      int
	FailedOperations []*Operation
	Recommendations  []string
}

// RollbackReport builds the aggregated report, including per-kind
// remediation recommendations for whatever failed.
func (m *Manager) RollbackReport() Report {
	failed := m.tx.failedOperations()
	return Report{
		TaskID:           m.tx.TaskID,
		UserID:           m.tx.UserID,
		Status:           m.tx.Status,
		Total:            len(m.tx.Operations),
		SuccessCount:     m.tx.successCount(),
		FailedCount:      len(failed),
		FailedOperations: failed,
		Recommendations:  recommendationsFor(failed),
	}
}

func recommendationsFor(failed []*Operation) []string {
	var recs []string

	vectorFailures := countKind(failed, KindVector)
	if vectorFailures > 0 {
		recs = append(recs, fmt.Sprintf(
			"Warning: vector deletion failed for %d file(s). Manually inspect the Qdrant collection for leftover points.",
			vectorFailures))
	}

	kgFailures := countKind(failed, KindKGEntity) + countKind(failed, KindKGRelation)
	if kgFailures > 0 {
		recs = append(recs, fmt.Sprintf(
			"Warning: %d knowledge-graph operation(s) failed. Manually clean up the entities and relations collections.",
			kgFailures))
	}

	fileFailures := countKind(failed, KindFile)
	if fileFailures > 0 {
		recs = append(recs, fmt.Sprintf(
			"Warning: file deletion failed for %d file(s). Manually check storage for leftover objects.",
			fileFailures))
	}

	if len(recs) == 0 {
		recs = append(recs, "All deletion operations completed successfully.")
	}
	return recs
}

func countKind(ops []*Operation, kind Kind) int {
	n := 0
	for _, op := range ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
