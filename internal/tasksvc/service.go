// Package tasksvc implements the soft-delete of tasks (C15): two-step
// delete into a trash state with a time-boxed permanent-delete window,
// restore, and a cleanup job that purges expired trash.
package tasksvc

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is a user task's lifecycle state.
type Status string

const (
	StatusActivate Status = "activate"
	StatusTrash    Status = "trash"
)

const trashRetention = 7 * 24 * time.Hour

// Task is a minimal user task record; the task's own fields beyond the
// soft-delete bookkeeping are opaque to this service.
type Task struct {
	ID                 string
	UserID             string
	Status             Status
	DeletedAt          *time.Time
	PermanentDeleteAt  *time.Time
	Data               map[string]any
}

// Service owns soft-delete/restore/purge transitions over an in-process
// task store (a map held by the Service itself).
type Service struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	log   *logrus.Entry
}

// New builds an empty task service.
func New() *Service {
	return &Service{
		tasks: make(map[string]*Task),
		log:   logrus.WithField("component", "tasksvc"),
	}
}

// Put registers or overwrites a task, used by callers seeding/loading tasks.
func (s *Service) Put(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[key(task.UserID, task.ID)] = task
}

func key(userID, taskID string) string {
	return userID + "\x00" + taskID
}

// Get returns a task snapshot, or nil if not found for that user.
func (s *Service) Get(userID, taskID string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[key(userID, taskID)]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// SoftDelete marks a task trash, stamping deleted_at=now and
// permanent_delete_at=now+7d.
func (s *Service) SoftDelete(userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key(userID, taskID)]
	if !ok {
		return fmt.Errorf("tasksvc: task %q not found for user %q", taskID, userID)
	}
	now := time.Now()
	purge := now.Add(trashRetention)
	t.Status = StatusTrash
	t.DeletedAt = &now
	t.PermanentDeleteAt = &purge
	s.log.WithFields(logrus.Fields{"user_id": userID, "task_id": taskID}).Info("task soft-deleted")
	return nil
}

// Restore reverses a soft delete: clears both timestamps and reactivates.
func (s *Service) Restore(userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key(userID, taskID)]
	if !ok {
		return fmt.Errorf("tasksvc: task %q not found for user %q", taskID, userID)
	}
	t.Status = StatusActivate
	t.DeletedAt = nil
	t.PermanentDeleteAt = nil
	s.log.WithFields(logrus.Fields{"user_id": userID, "task_id": taskID}).Info("task restored")
	return nil
}

// PermanentDelete removes a task outright; only valid from trash.
func (s *Service) PermanentDelete(userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, taskID)
	t, ok := s.tasks[k]
	if !ok {
		return fmt.Errorf("tasksvc: task %q not found for user %q", taskID, userID)
	}
	if t.Status != StatusTrash {
		return fmt.Errorf("tasksvc: task %q is not in trash (status=%s)", taskID, t.Status)
	}
	delete(s.tasks, k)
	s.log.WithFields(logrus.Fields{"user_id": userID, "task_id": taskID}).Info("task permanently deleted")
	return nil
}

// List returns a user's tasks; trashed tasks are excluded unless
// includeArchived is set.
func (s *Service) List(userID string, includeArchived bool) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		if t.Status == StatusTrash && !includeArchived {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// CleanupExpiredTrash permanently deletes every trashed task whose
// permanent_delete_at has passed, returning how many were purged.
func (s *Service) CleanupExpiredTrash() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	purged := 0
	for k, t := range s.tasks {
		if t.Status == StatusTrash && t.PermanentDeleteAt != nil && t.PermanentDeleteAt.Before(now) {
			delete(s.tasks, k)
			purged++
			s.log.WithFields(logrus.Fields{"user_id": t.UserID, "task_id": t.ID}).Info("expired trash purged")
		}
	}
	return purged
}
