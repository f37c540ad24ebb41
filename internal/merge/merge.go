// Package merge reconciles two divergent copies of a record against their
// common ancestor.
//
// The merge is field-level: each Record field declares a strategy in
// types.Fields, and only fields where both sides changed to genuinely
// different values are treated as conflicts. Single-sided changes merge
// cleanly with no conflict entry. Every value a merge discards is archived
// to the attic before the result is considered valid.
package merge

import (
	"fmt"
	"reflect"
	"time"

	"github.com/taskbeads/tbd/internal/attic"
	"github.com/taskbeads/tbd/internal/types"
)

// Result is the outcome of one three-way merge.
type Result struct {
	Merged *types.Record

	// Conflicts holds one entry per discarded value, already archived.
	Conflicts []attic.Entry
}

// Merger performs three-way merges and archives anything they discard.
type Merger struct {
	archiver *attic.Archiver

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Merger. The archiver is required: a merge whose conflict
// entries cannot be archived is reported as failed, never partially applied.
func New(archiver *attic.Archiver) *Merger {
	return &Merger{archiver: archiver, now: time.Now}
}

// Merge reconciles local and remote against base. A nil base means the
// record was created independently on both sides with a colliding id; the
// copy with the earlier created_at survives as the identity.
//
// The merged record is always built fresh from the three inputs; none of
// them is mutated. Its version and updated_at advance past both inputs
// unconditionally so merge results never loop.
func (m *Merger) Merge(base, local, remote *types.Record) (*Result, error) {
	if local == nil || remote == nil {
		return nil, fmt.Errorf("merge requires both local and remote copies")
	}
	if local.ID != remote.ID {
		return nil, fmt.Errorf("cannot merge records with different ids: %s vs %s", local.ID, remote.ID)
	}

	var merged *types.Record
	var conflicts []attic.Entry

	if base == nil {
		merged, conflicts = m.mergeColliding(local, remote)
	} else {
		merged, conflicts = m.mergeFields(base, local, remote)
	}

	merged.Version = max(local.Version, remote.Version) + 1
	merged.UpdatedAt = m.now().UTC()

	// Archive before reporting success; a failed archive fails the merge.
	for _, entry := range conflicts {
		if err := m.archiver.Archive(entry); err != nil {
			return nil, fmt.Errorf("failed to archive conflict for %s: %w", entry.RecordID, err)
		}
	}

	return &Result{Merged: merged, Conflicts: conflicts}, nil
}

// mergeColliding resolves two independent creations under the same id:
// the earlier created_at wins as the surviving identity.
func (m *Merger) mergeColliding(local, remote *types.Record) (*types.Record, []attic.Entry) {
	winner, loser := local, remote
	resolution := attic.ResolutionLocal
	if remote.CreatedAt.Before(local.CreatedAt) {
		winner, loser = remote, local
		resolution = attic.ResolutionRemote
	}

	merged := winner.Clone()
	if reflect.DeepEqual(*local, *remote) {
		return merged, nil
	}

	return merged, []attic.Entry{{
		RecordID:      local.ID,
		Timestamp:     m.now().UTC(),
		LostValue:     loser.Clone(),
		WinnerValue:   winner.Clone(),
		LocalVersion:  local.Version,
		RemoteVersion: remote.Version,
		Resolution:    resolution + ", " + attic.ResolutionEarlierWins,
	}}
}

// mergeFields walks every Record field and applies its declared strategy.
func (m *Merger) mergeFields(base, local, remote *types.Record) (*types.Record, []attic.Entry) {
	recType := reflect.TypeOf(types.Record{})
	baseV := reflect.ValueOf(base).Elem()
	localV := reflect.ValueOf(local).Elem()
	remoteV := reflect.ValueOf(remote).Elem()
	mergedV := reflect.New(recType).Elem()

	var conflicts []attic.Entry

	for i := 0; i < recType.NumField(); i++ {
		name := recType.Field(i).Name
		spec := types.Fields[name]

		b := baseV.Field(i)
		l := localV.Field(i)
		r := remoteV.Field(i)

		localChanged := !reflect.DeepEqual(l.Interface(), b.Interface())
		remoteChanged := !reflect.DeepEqual(r.Interface(), b.Interface())

		switch {
		case !localChanged && !remoteChanged:
			mergedV.Field(i).Set(b)
		case localChanged && !remoteChanged:
			mergedV.Field(i).Set(l)
		case !localChanged && remoteChanged:
			mergedV.Field(i).Set(r)
		case reflect.DeepEqual(l.Interface(), r.Interface()):
			// Both changed to the identical value.
			mergedV.Field(i).Set(l)
		default:
			entry := m.resolveConflict(spec, mergedV.Field(i), b, l, r, local, remote)
			if entry != nil {
				conflicts = append(conflicts, *entry)
			}
		}
	}

	merged := mergedV.Addr().Interface().(*types.Record)
	return merged, conflicts
}

// resolveConflict applies the field's strategy when both sides changed to
// different values. Returns a conflict entry when a value was discarded,
// nil when the strategy preserves both inputs (union, max).
func (m *Merger) resolveConflict(spec types.FieldSpec, dst, base, l, r reflect.Value, local, remote *types.Record) *attic.Entry {
	entry := &attic.Entry{
		RecordID:      local.ID,
		Field:         spec.Name,
		Timestamp:     m.now().UTC(),
		LocalVersion:  local.Version,
		RemoteVersion: remote.Version,
	}

	switch spec.Strategy {
	case types.StrategyImmutable:
		// Both concurrent edits are dropped; the base value is retained and
		// the dropped pair is archived for audit.
		dst.Set(base)
		entry.LostValue = map[string]any{"local": l.Interface(), "remote": r.Interface()}
		entry.WinnerValue = base.Interface()
		entry.Resolution = attic.ResolutionImmutableBase
		return entry

	case types.StrategyLWW:
		// Compare whole-record modification times, not per-field.
		if remote.UpdatedAt.After(local.UpdatedAt) {
			dst.Set(r)
			entry.LostValue = l.Interface()
			entry.WinnerValue = r.Interface()
			entry.Resolution = attic.ResolutionRemote
		} else {
			dst.Set(l)
			entry.LostValue = r.Interface()
			entry.WinnerValue = l.Interface()
			entry.Resolution = attic.ResolutionLocal
		}
		return entry

	case types.StrategyUnion:
		dst.Set(unionSlices(l, r))
		return nil

	case types.StrategyMax:
		dst.Set(maxValue(l, r))
		return nil

	default:
		// Unreachable: types.init guarantees every field has a strategy.
		panic(fmt.Sprintf("merge: field %s has unknown strategy %q", spec.Name, spec.Strategy))
	}
}

// unionSlices returns the deep-deduplicated union of two slice values,
// preserving local's elements first, then remote's novel elements.
func unionSlices(l, r reflect.Value) reflect.Value {
	out := reflect.MakeSlice(l.Type(), 0, l.Len()+r.Len())
	for _, src := range []reflect.Value{l, r} {
		for i := 0; i < src.Len(); i++ {
			elem := src.Index(i)
			dup := false
			for j := 0; j < out.Len(); j++ {
				if reflect.DeepEqual(out.Index(j).Interface(), elem.Interface()) {
					dup = true
					break
				}
			}
			if !dup {
				out = reflect.Append(out, elem)
			}
		}
	}
	return out
}

// maxValue picks the larger of two values for max-strategy fields
// (integers and timestamps).
func maxValue(l, r reflect.Value) reflect.Value {
	switch l.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if r.Int() > l.Int() {
			return r
		}
		return l
	default:
		if lt, ok := l.Interface().(time.Time); ok {
			if rt := r.Interface().(time.Time); rt.After(lt) {
				return r
			}
			return l
		}
		panic(fmt.Sprintf("merge: max strategy on unsupported type %s", l.Type()))
	}
}
