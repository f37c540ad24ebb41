// Package types defines the record model shared by the store, merge engine,
// and sync coordinator.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Status enumerates record lifecycle states. Closing a record is a status
// transition, never a file deletion, so closed records still sync.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
)

// ValidStatuses lists every accepted status value.
var ValidStatuses = []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusDeferred, StatusClosed}

// Dependency is a typed relation from this record to another record.
type Dependency struct {
	// On is the internal id of the target record
	On string `yaml:"on" json:"on"`

	// Type is the relation type (blocks, related, discovered-from)
	Type string `yaml:"type" json:"type"`
}

// Record is the unit of synchronization: one file on the sync branch,
// one logical issue/task. Fields carry per-field merge strategies declared
// in fields.go; Version and UpdatedAt are monotonic so merges never regress
// either.
type Record struct {
	// ID is the permanent internal identifier (rec-xxxxxxxxxxxx), immutable.
	ID string `yaml:"id" json:"id"`

	// Version increases on every write; merge results always advance past
	// both inputs.
	Version int `yaml:"version" json:"version"`

	Kind        string `yaml:"kind" json:"kind"` // bug, feature, task, epic, chore
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Notes is free text stored as the file body after the frontmatter
	// block, not as a frontmatter key.
	Notes string `yaml:"-" json:"notes,omitempty"`

	Status   Status `yaml:"status" json:"status"`
	Priority int    `yaml:"priority" json:"priority"` // 0-4 (P0=critical, P4=backlog)
	Assignee string `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	ParentID string `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`

	Labels       []string     `yaml:"labels,omitempty" json:"labels,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	CreatedBy string    `yaml:"created_by,omitempty" json:"created_by,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`

	ClosedAt    *time.Time `yaml:"closed_at,omitempty" json:"closed_at,omitempty"`
	CloseReason string     `yaml:"close_reason,omitempty" json:"close_reason,omitempty"`

	DueDate       *time.Time `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	DeferredUntil *time.Time `yaml:"deferred_until,omitempty" json:"deferred_until,omitempty"`

	// Extensions carries opaque structured payloads from external tools.
	Extensions map[string]any `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

// IDPrefix is the prefix for internal record identifiers.
const IDPrefix = "rec-"

// NewInternalID generates a fresh permanent identifier: rec- plus 12 hex
// characters from crypto/rand.
func NewInternalID() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}
	return IDPrefix + hex.EncodeToString(buf[:]), nil
}

// Validate checks required fields and value ranges.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(r.Title))
	}
	if r.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if r.Status == "" {
		return fmt.Errorf("status is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Priority < 0 || r.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", r.Priority)
	}
	if r.Version < 1 {
		return fmt.Errorf("version must be at least 1 (got %d)", r.Version)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// SetDefaults applies defaults for omitted fields so records parsed from
// hand-edited files behave consistently.
func (r *Record) SetDefaults() {
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if r.Kind == "" {
		r.Kind = "task"
	}
	if r.Version < 1 {
		r.Version = 1
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.Status == StatusClosed && r.ClosedAt == nil {
		now := time.Now().UTC()
		r.ClosedAt = &now
	}
}

// Touch bumps the version and advances the modification timestamp.
// Call after every mutation.
func (r *Record) Touch() {
	r.Version++
	r.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Labels != nil {
		c.Labels = append([]string(nil), r.Labels...)
	}
	if r.Dependencies != nil {
		c.Dependencies = append([]Dependency(nil), r.Dependencies...)
	}
	c.ClosedAt = cloneTime(r.ClosedAt)
	c.DueDate = cloneTime(r.DueDate)
	c.DeferredUntil = cloneTime(r.DeferredUntil)
	if r.Extensions != nil {
		c.Extensions = make(map[string]any, len(r.Extensions))
		for k, v := range r.Extensions {
			c.Extensions[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
