package memory

import (
	"fmt"
	"time"
)

// Type routes a record to the short-term (KV) or long-term (vector+graph) tier.
type Type string

const (
	ShortTerm Type = "short_term"
	LongTerm  Type = "long_term"
)

// Priority influences relevance scoring and tie-break ordering.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the ordinal used to break relevance ties, higher wins.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Bonus returns the retrieval-time relevance bonus for this priority.
func (p Priority) Bonus() float64 {
	switch p {
	case PriorityCritical:
		return 0.3
	case PriorityHigh:
		return 0.2
	case PriorityMedium:
		return 0.1
	default:
		return 0
	}
}

// Status is a soft-delete and hygiene flag.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusReview   Status = "review"
)

// Record is the central memory entity shared across all tiers.
type Record struct {
	ID          string         `json:"memory_id"`
	Content     string         `json:"content"`
	MemoryType  Type           `json:"memory_type"`
	Priority    Priority       `json:"priority"`
	UserID      string         `json:"user_id"`
	EntityType  string         `json:"entity_type,omitempty"`
	EntityValue string         `json:"entity_value,omitempty"`
	Confidence  float64        `json:"confidence"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata"`
	Embedding   []float32      `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	AccessedAt  time.Time      `json:"accessed_at"`
	AccessCount int64          `json:"access_count"`

	// RelevanceScore is transient: set by retrieval, never persisted authoritatively.
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// New builds a Record with sane defaults; callers still must set an ID before storing.
func New(content string, memType Type, priority Priority) *Record {
	now := time.Now()
	return &Record{
		Content:    content,
		MemoryType: memType,
		Priority:   priority,
		Status:     StatusActive,
		Confidence: 1.0,
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
	}
}

// Validate checks the record has the fields required to be persisted.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("memory: record ID cannot be empty")
	}
	if r.Content == "" {
		return fmt.Errorf("memory: record content cannot be empty")
	}
	switch r.MemoryType {
	case ShortTerm, LongTerm:
	default:
		return fmt.Errorf("memory: invalid memory_type %q", r.MemoryType)
	}
	switch r.Status {
	case StatusActive, StatusArchived, StatusReview:
	default:
		return fmt.Errorf("memory: invalid status %q", r.Status)
	}
	return nil
}

// Touch records an access: bumps accessed_at and access_count monotonically.
func (r *Record) Touch() {
	r.AccessedAt = time.Now()
	r.AccessCount++
}

// Clone returns a deep-enough copy for safe mutation by callers.
func (r *Record) Clone() *Record {
	c := *r
	c.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	c.Embedding = append([]float32(nil), r.Embedding...)
	return &c
}

// DedupeKey identifies the (user, entity_type, entity_value) tuple the
// at-most-one-active-record invariant is keyed on.
func (r *Record) DedupeKey() string {
	return r.UserID + "\x00" + r.EntityType + "\x00" + r.EntityValue
}
