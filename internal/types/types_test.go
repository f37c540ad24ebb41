package types

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// TestFieldsCoverEveryRecordField verifies the strategy table matches the
// Record struct both ways. The init check already panics on a mismatch;
// this makes the guarantee visible in test output.
func TestFieldsCoverEveryRecordField(t *testing.T) {
	rt := reflect.TypeOf(Record{})
	if rt.NumField() != len(Fields) {
		t.Errorf("Record has %d fields but %d strategies declared", rt.NumField(), len(Fields))
	}
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Name
		spec, ok := Fields[name]
		if !ok {
			t.Errorf("Field %s has no declared strategy", name)
			continue
		}
		if spec.Name == "" {
			t.Errorf("Field %s has no wire name", name)
		}
	}
}

// TestNewInternalID verifies the id shape and uniqueness.
func TestNewInternalID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewInternalID()
		if err != nil {
			t.Fatalf("NewInternalID() failed: %v", err)
		}
		if !strings.HasPrefix(id, IDPrefix) {
			t.Fatalf("id %q missing prefix", id)
		}
		if len(id) != len(IDPrefix)+12 {
			t.Fatalf("id %q has wrong length", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

// TestValidate covers required-field and range checks.
func TestValidate(t *testing.T) {
	valid := func() *Record {
		now := time.Now().UTC()
		return &Record{
			ID: "rec-0123456789ab", Version: 1, Kind: "task", Title: "t",
			Status: StatusOpen, CreatedAt: now, UpdatedAt: now,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Valid record rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing id", func(r *Record) { r.ID = "" }},
		{"missing title", func(r *Record) { r.Title = "" }},
		{"title too long", func(r *Record) { r.Title = strings.Repeat("x", 501) }},
		{"missing kind", func(r *Record) { r.Kind = "" }},
		{"bad status", func(r *Record) { r.Status = "done" }},
		{"priority too high", func(r *Record) { r.Priority = 5 }},
		{"negative priority", func(r *Record) { r.Priority = -1 }},
		{"zero version", func(r *Record) { r.Version = 0 }},
		{"zero created_at", func(r *Record) { r.CreatedAt = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid()
			tc.mutate(r)
			if err := r.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}

// TestTouch verifies version and timestamp advancement.
func TestTouch(t *testing.T) {
	r := &Record{Version: 3, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	before := r.UpdatedAt
	r.Touch()
	if r.Version != 4 {
		t.Errorf("Expected version 4, got %d", r.Version)
	}
	if !r.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt did not advance: %v", r.UpdatedAt)
	}
}

// TestCloneIsDeep verifies mutations on a clone never reach the original.
func TestCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{
		ID: "rec-0123456789ab", Version: 1, Kind: "bug", Title: "t",
		Status: StatusOpen, CreatedAt: now, UpdatedAt: now,
		Labels:       []string{"a"},
		Dependencies: []Dependency{{On: "rec-ffffffffffff", Type: "blocks"}},
		DueDate:      &now,
		Extensions:   map[string]any{"k": "v"},
	}

	c := r.Clone()
	c.Labels[0] = "changed"
	c.Dependencies[0].Type = "related"
	*c.DueDate = now.Add(time.Hour)
	c.Extensions["k"] = "changed"

	if r.Labels[0] != "a" {
		t.Error("Clone shares the labels slice")
	}
	if r.Dependencies[0].Type != "blocks" {
		t.Error("Clone shares the dependencies slice")
	}
	if !r.DueDate.Equal(now) {
		t.Error("Clone shares the due date pointer")
	}
	if r.Extensions["k"] != "v" {
		t.Error("Clone shares the extensions map")
	}
}
