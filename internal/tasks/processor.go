// Package tasks implements the async task processor (C12): typed,
// prioritised, cancellable background tasks over a bounded ants worker
// pool, grounded in kart-io-sentinel-x's pkg/infra/pool wrapper.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Status is a task's lifecycle state.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// Priority is recorded on each task and orders ListTasks output; the worker
// pool does not reorder or schedule tasks by priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Func is the async callable a task wraps.
type Func func(ctx context.Context) (any, error)

// Task is the async task record.
type Task struct {
	ID          string
	Type        string
	Priority    Priority
	Metadata    map[string]any
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      any
	Err         error
	RetryCount  int

	mu     sync.Mutex
	cancel context.CancelFunc
	fn     Func
}

func (t *Task) snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *t
	cp.cancel = nil
	cp.fn = nil
	return cp
}

// Processor is the bounded worker pool over submitted tasks.
type Processor struct {
	pool *ants.Pool
	mu   sync.RWMutex
	tasks map[string]*Task
	log  *logrus.Entry
}

// New builds a processor with the given worker pool capacity.
func New(capacity int) (*Processor, error) {
	if capacity <= 0 {
		capacity = 10
	}
	pool, err := ants.NewPool(capacity)
	if err != nil {
		return nil, fmt.Errorf("tasks: new pool: %w", err)
	}
	return &Processor{
		pool:  pool,
		tasks: make(map[string]*Task),
		log:   logrus.WithField("component", "task_processor"),
	}, nil
}

// Release shuts the worker pool down.
func (p *Processor) Release() {
	p.pool.Release()
}

// Submit registers a task and schedules it on the worker pool, returning its id.
func (p *Processor) Submit(taskType string, priority Priority, metadata map[string]any, fn Func) string {
	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Priority:  priority,
		Metadata:  metadata,
		Status:    Pending,
		CreatedAt: time.Now(),
		cancel:    cancel,
		fn:        fn,
	}

	p.mu.Lock()
	p.tasks[task.ID] = task
	p.mu.Unlock()

	if err := p.pool.Submit(func() { p.run(ctx, task) }); err != nil {
		task.mu.Lock()
		task.Status = Failed
		task.Err = fmt.Errorf("tasks: submit: %w", err)
		task.mu.Unlock()
	}
	return task.ID
}

func (p *Processor) run(ctx context.Context, task *Task) {
	task.mu.Lock()
	if task.Status == Cancelled {
		task.mu.Unlock()
		return
	}
	task.Status = Running
	now := time.Now()
	task.StartedAt = &now
	fn := task.fn
	task.mu.Unlock()

	result, err := fn(ctx)

	task.mu.Lock()
	defer task.mu.Unlock()
	if task.Status == Cancelled {
		return
	}
	completed := time.Now()
	task.CompletedAt = &completed
	if err != nil {
		task.Status = Failed
		task.Err = err
		p.log.WithError(err).WithField("task_id", task.ID).Warn("task failed")
		return
	}
	task.Status = Completed
	task.Result = result
}

// GetTask returns a snapshot of a task's current state, or nil if unknown.
func (p *Processor) GetTask(id string) *Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	task, ok := p.tasks[id]
	if !ok {
		return nil
	}
	snap := task.snapshot()
	return &snap
}

// GetTaskResult returns a task's result, valid only once it has completed.
func (p *Processor) GetTaskResult(id string) (any, error) {
	task := p.GetTask(id)
	if task == nil {
		return nil, fmt.Errorf("tasks: unknown task %q", id)
	}
	if task.Status != Completed {
		return nil, fmt.Errorf("tasks: task %q is not completed (status=%s)", id, task.Status)
	}
	return task.Result, nil
}

// CancelTask cancels a task while it is pending or running; a running task's
// context is cancelled so it can observe and exit cooperatively.
func (p *Processor) CancelTask(id string) bool {
	p.mu.RLock()
	task, ok := p.tasks[id]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.Status != Pending && task.Status != Running {
		return false
	}
	task.Status = Cancelled
	if task.cancel != nil {
		task.cancel()
	}
	return true
}

// ListTasks returns tasks matching the optional status/type filters, ordered
// by priority (highest first), then by creation time within the same
// priority.
func (p *Processor) ListTasks(status Status, taskType string) []Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Task
	for _, t := range p.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		out = append(out, t.snapshot())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
