package types

import (
	"fmt"
	"reflect"
)

// Strategy selects how the merge engine reconciles a field when local and
// remote both changed it relative to base.
type Strategy string

const (
	// StrategyImmutable retains the base value; concurrent edits are dropped
	// (and archived for audit).
	StrategyImmutable Strategy = "immutable"

	// StrategyLWW picks the value from the copy with the later whole-record
	// updated_at.
	StrategyLWW Strategy = "last-writer-wins"

	// StrategyUnion takes the deduplicated union of both set values,
	// local elements first.
	StrategyUnion Strategy = "union"

	// StrategyMax takes the numeric/chronological maximum.
	StrategyMax Strategy = "max"
)

// FieldSpec declares the wire name and merge strategy for one Record field.
type FieldSpec struct {
	// Name is the snake_case field name used in frontmatter, conflict
	// entries, and JSON output.
	Name string

	Strategy Strategy
}

// Fields maps every Record struct field to its merge behavior. The table is
// exhaustive by construction: init verifies it against the Record type, so a
// new field without a declared strategy fails at program start (and in every
// test run) instead of merging silently wrong.
var Fields = map[string]FieldSpec{
	"ID":            {"id", StrategyImmutable},
	"Version":       {"version", StrategyMax},
	"Kind":          {"kind", StrategyImmutable},
	"Title":         {"title", StrategyLWW},
	"Description":   {"description", StrategyLWW},
	"Notes":         {"notes", StrategyLWW},
	"Status":        {"status", StrategyLWW},
	"Priority":      {"priority", StrategyLWW},
	"Assignee":      {"assignee", StrategyLWW},
	"ParentID":      {"parent_id", StrategyLWW},
	"Labels":        {"labels", StrategyUnion},
	"Dependencies":  {"dependencies", StrategyUnion},
	"CreatedAt":     {"created_at", StrategyImmutable},
	"CreatedBy":     {"created_by", StrategyImmutable},
	"UpdatedAt":     {"updated_at", StrategyMax},
	"ClosedAt":      {"closed_at", StrategyLWW},
	"CloseReason":   {"close_reason", StrategyLWW},
	"DueDate":       {"due_date", StrategyLWW},
	"DeferredUntil": {"deferred_until", StrategyLWW},
	"Extensions":    {"extensions", StrategyLWW},
}

func init() {
	t := reflect.TypeOf(Record{})
	seen := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		if _, ok := Fields[name]; !ok {
			panic(fmt.Sprintf("types: Record field %s has no merge strategy declared in Fields", name))
		}
		seen[name] = true
	}
	for name := range Fields {
		if !seen[name] {
			panic(fmt.Sprintf("types: Fields declares strategy for unknown Record field %s", name))
		}
	}
}
