// Package context implements the per-session append-only message log (C7).
// It stores conversation turns only; it does not read from or write to the
// memory package's AAM core. It follows
// the teacher's habit of putting storage behind a small interface with a
// local in-process implementation alongside the networked one.
package context

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a context message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a session's ordered log.
type Message struct {
	MessageID string         `json:"message_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Turn is the LLM-ready shape returned by GetConversationContext.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend is the uniform interface both the in-process and KV-backed
// implementations satisfy.
type Backend interface {
	Append(sessionID string, msg Message) error
	History(sessionID string, limit int, roleFilter Role) []Message
	DeleteMessages(sessionID string, before time.Time, roleFilter Role) int
	Archive(sessionID, archiveKey string) bool
	LastTouch(sessionID string) (time.Time, bool)
	Sessions() []string
	Purge(sessionID string)
}

// Store is the C7 façade: append/read/filter/archive/expire over a Backend.
type Store struct {
	backend    Backend
	sessionTTL time.Duration
}

// New builds a context store. sessionTTL defaults to 3600s when zero.
func New(backend Backend, sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Store{backend: backend, sessionTTL: sessionTTL}
}

// Record appends one message to the session's ordered list.
func (s *Store) Record(sessionID string, role Role, content string, metadata map[string]any) (Message, error) {
	msg := Message{
		MessageID: uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	if err := s.backend.Append(sessionID, msg); err != nil {
		return Message{}, fmt.Errorf("context: record: %w", err)
	}
	return msg, nil
}

// GetHistory returns up to limit messages (0 = unlimited), optionally
// filtered by role.
func (s *Store) GetHistory(sessionID string, limit int, roleFilter Role) []Message {
	return s.backend.History(sessionID, limit, roleFilter)
}

// GetConversationContext returns the LLM-ready [{role, content}, ...] view.
func (s *Store) GetConversationContext(sessionID string, limit int) []Turn {
	msgs := s.backend.History(sessionID, limit, "")
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

// DeleteMessages removes messages older than cutoff (optionally role-
// filtered), returning the count removed.
func (s *Store) DeleteMessages(sessionID string, cutoff time.Time, roleFilter Role) int {
	return s.backend.DeleteMessages(sessionID, cutoff, roleFilter)
}

// ArchiveSession moves the full list to an archive key and removes the live key.
func (s *Store) ArchiveSession(sessionID, archiveKey string) bool {
	if archiveKey == "" {
		archiveKey = sessionID + ":archive"
	}
	return s.backend.Archive(sessionID, archiveKey)
}

// CleanupExpiredSessions purges sessions whose last touch predates the TTL.
func (s *Store) CleanupExpiredSessions() int {
	cutoff := time.Now().Add(-s.sessionTTL)
	count := 0
	for _, sid := range s.backend.Sessions() {
		if last, ok := s.backend.LastTouch(sid); ok && last.Before(cutoff) {
			s.backend.Purge(sid)
			count++
		}
	}
	return count
}

// InProcessBackend is a process-local Backend used for tests and single-node
// deployments, mirroring the teacher's mock-store pattern.
type InProcessBackend struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	archived map[string][]Message
	touched  map[string]time.Time
}

// NewInProcessBackend returns an empty in-process backend.
func NewInProcessBackend() *InProcessBackend {
	return &InProcessBackend{
		sessions: make(map[string][]Message),
		archived: make(map[string][]Message),
		touched:  make(map[string]time.Time),
	}
}

func (b *InProcessBackend) Append(sessionID string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sessionID] = append(b.sessions[sessionID], msg)
	b.touched[sessionID] = time.Now()
	return nil
}

func (b *InProcessBackend) History(sessionID string, limit int, roleFilter Role) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	all := b.sessions[sessionID]
	var out []Message
	for _, m := range all {
		if roleFilter != "" && m.Role != roleFilter {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *InProcessBackend) DeleteMessages(sessionID string, before time.Time, roleFilter Role) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.sessions[sessionID]
	kept := all[:0]
	deleted := 0
	for _, m := range all {
		if m.Timestamp.Before(before) && (roleFilter == "" || m.Role == roleFilter) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	b.sessions[sessionID] = kept
	return deleted
}

func (b *InProcessBackend) Archive(sessionID, archiveKey string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	b.archived[archiveKey] = msgs
	delete(b.sessions, sessionID)
	delete(b.touched, sessionID)
	return true
}

func (b *InProcessBackend) LastTouch(sessionID string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.touched[sessionID]
	return t, ok
}

func (b *InProcessBackend) Sessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.sessions))
	for sid := range b.sessions {
		out = append(out, sid)
	}
	return out
}

func (b *InProcessBackend) Purge(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	delete(b.touched, sessionID)
}
