package merge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/taskbeads/tbd/internal/attic"
	"github.com/taskbeads/tbd/internal/types"
)

var mergeTime = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func testMerger(t *testing.T) (*Merger, *attic.Archiver) {
	t.Helper()
	archiver := attic.New(filepath.Join(t.TempDir(), "conflicts.yml"))
	m := New(archiver)
	m.now = func() time.Time { return mergeTime }
	return m, archiver
}

func baseRecord() *types.Record {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &types.Record{
		ID:        "rec-0a1b2c3d4e5f",
		Version:   3,
		Kind:      "bug",
		Title:     "Crash on empty input",
		Status:    types.StatusOpen,
		Priority:  2,
		Labels:    []string{"parser"},
		CreatedAt: created,
		CreatedBy: "alice",
		UpdatedAt: created.Add(time.Hour),
	}
}

// TestMergeSingleSidedChange verifies that a change on only one side is
// taken as-is with no conflict.
func TestMergeSingleSidedChange(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Assignee = "bob"
	local.Touch()
	remote := base.Clone()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("Expected no conflicts, got %d", len(result.Conflicts))
	}
	if result.Merged.Assignee != "bob" {
		t.Errorf("Expected local assignee to survive, got %q", result.Merged.Assignee)
	}
	if result.Merged.Title != base.Title {
		t.Errorf("Unchanged title was altered: %q", result.Merged.Title)
	}
}

// TestMergeDisjointFields verifies that edits to different fields on each
// side both survive without conflict.
func TestMergeDisjointFields(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Assignee = "bob"
	local.Touch()
	remote := base.Clone()
	remote.Status = types.StatusInProgress
	remote.Touch()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("Expected no conflicts, got %d: %+v", len(result.Conflicts), result.Conflicts)
	}
	if result.Merged.Assignee != "bob" {
		t.Errorf("Lost local assignee edit: %q", result.Merged.Assignee)
	}
	if result.Merged.Status != types.StatusInProgress {
		t.Errorf("Lost remote status edit: %q", result.Merged.Status)
	}
}

// TestMergeBothChangedSameValue verifies that identical concurrent edits
// are not treated as a conflict.
func TestMergeBothChangedSameValue(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Priority = 0
	local.Touch()
	remote := base.Clone()
	remote.Priority = 0
	remote.Touch()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("Identical edits should not conflict, got %d entries", len(result.Conflicts))
	}
	if result.Merged.Priority != 0 {
		t.Errorf("Expected priority 0, got %d", result.Merged.Priority)
	}
}

// TestMergeLWWRemoteWins verifies last-writer-wins picks the side whose
// whole record was modified later, and archives the loser.
func TestMergeLWWRemoteWins(t *testing.T) {
	m, archiver := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Title = "Crash on empty input (local)"
	local.Version++
	local.UpdatedAt = base.UpdatedAt.Add(1 * time.Minute)
	remote := base.Clone()
	remote.Title = "Crash on empty input (remote)"
	remote.Version++
	remote.UpdatedAt = base.UpdatedAt.Add(5 * time.Minute)

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if result.Merged.Title != remote.Title {
		t.Errorf("Expected remote title to win, got %q", result.Merged.Title)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(result.Conflicts))
	}

	entry := result.Conflicts[0]
	if entry.Field != "title" {
		t.Errorf("Expected conflict on title, got %q", entry.Field)
	}
	if entry.Resolution != attic.ResolutionRemote {
		t.Errorf("Expected resolution %q, got %q", attic.ResolutionRemote, entry.Resolution)
	}
	if entry.LostValue != local.Title {
		t.Errorf("Expected lost value %q, got %v", local.Title, entry.LostValue)
	}

	// The loser must be recoverable from the log.
	archived, err := archiver.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("Expected 1 archived entry, got %d", len(archived))
	}
	if archived[0].LostValue != local.Title {
		t.Errorf("Archived lost value = %v, want %q", archived[0].LostValue, local.Title)
	}
}

// TestMergeLWWLocalWins covers the tie direction: when remote is not
// strictly newer, local wins.
func TestMergeLWWLocalWins(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Title = "local title"
	local.Version++
	local.UpdatedAt = base.UpdatedAt.Add(time.Minute)
	remote := base.Clone()
	remote.Title = "remote title"
	remote.Version++
	remote.UpdatedAt = local.UpdatedAt

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if result.Merged.Title != "local title" {
		t.Errorf("Expected local to win the tie, got %q", result.Merged.Title)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Resolution != attic.ResolutionLocal {
		t.Errorf("Expected one local-resolution conflict, got %+v", result.Conflicts)
	}
}

// TestMergeUnionLabels verifies that divergent label lists merge to a
// deduplicated superset with no conflict entry.
func TestMergeUnionLabels(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Labels = []string{"parser", "urgent"}
	local.Touch()
	remote := base.Clone()
	remote.Labels = []string{"parser", "backend"}
	remote.Touch()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("Union should not produce conflicts, got %d", len(result.Conflicts))
	}
	want := []string{"parser", "urgent", "backend"}
	if diff := cmp.Diff(want, result.Merged.Labels); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
}

// TestMergeUnionDependencies verifies union merging of typed dependency
// edges, including duplicate suppression.
func TestMergeUnionDependencies(t *testing.T) {
	m, _ := testMerger(t)
	shared := types.Dependency{On: "rec-aaaaaaaaaaaa", Type: "blocks"}
	base := baseRecord()
	base.Dependencies = []types.Dependency{shared}
	local := base.Clone()
	local.Dependencies = append(local.Dependencies, types.Dependency{On: "rec-bbbbbbbbbbbb", Type: "related"})
	local.Touch()
	remote := base.Clone()
	remote.Dependencies = append(remote.Dependencies, types.Dependency{On: "rec-cccccccccccc", Type: "blocks"})
	remote.Touch()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Merged.Dependencies) != 3 {
		t.Fatalf("Expected 3 dependencies, got %d: %+v", len(result.Merged.Dependencies), result.Merged.Dependencies)
	}
	if result.Merged.Dependencies[0] != shared {
		t.Errorf("Shared dependency not first: %+v", result.Merged.Dependencies[0])
	}
}

// TestMergeVersionAdvances verifies the merged record's version moves past
// both inputs and its modification time is the merge time, so a merge
// result can never lose a later comparison against its own inputs.
func TestMergeVersionAdvances(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Version = 7
	local.Assignee = "bob"
	remote := base.Clone()
	remote.Version = 5

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if result.Merged.Version != 8 {
		t.Errorf("Expected version 8 (max(7,5)+1), got %d", result.Merged.Version)
	}
	if !result.Merged.UpdatedAt.Equal(mergeTime) {
		t.Errorf("Expected updated_at %v, got %v", mergeTime, result.Merged.UpdatedAt)
	}
}

// TestMergeImmutableConflict verifies that concurrent edits to an immutable
// field are both dropped, the base value retained, and the pair archived.
func TestMergeImmutableConflict(t *testing.T) {
	m, archiver := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Kind = "feature"
	local.Touch()
	remote := base.Clone()
	remote.Kind = "chore"
	remote.Touch()

	result, err := m.Merge(base, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if result.Merged.Kind != "bug" {
		t.Errorf("Expected base kind retained, got %q", result.Merged.Kind)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(result.Conflicts))
	}
	entry := result.Conflicts[0]
	if entry.Resolution != attic.ResolutionImmutableBase {
		t.Errorf("Expected resolution %q, got %q", attic.ResolutionImmutableBase, entry.Resolution)
	}
	lost, ok := entry.LostValue.(map[string]any)
	if !ok {
		t.Fatalf("Expected lost value to hold both sides, got %T", entry.LostValue)
	}
	if lost["local"] != "feature" || lost["remote"] != "chore" {
		t.Errorf("Lost pair mismatch: %v", lost)
	}

	archived, err := archiver.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(archived) != 1 {
		t.Errorf("Expected the immutable drop archived, got %d entries", len(archived))
	}
}

// TestMergeNilBaseEarlierCreatedWins verifies id-collision handling: two
// independent creations, the earlier created_at survives, the other copy
// is archived whole.
func TestMergeNilBaseEarlierCreatedWins(t *testing.T) {
	m, _ := testMerger(t)
	local := baseRecord()
	remote := baseRecord()
	remote.Title = "Another record entirely"
	remote.CreatedAt = local.CreatedAt.Add(-2 * time.Hour)
	remote.UpdatedAt = remote.CreatedAt

	result, err := m.Merge(nil, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if result.Merged.Title != remote.Title {
		t.Errorf("Expected earlier-created remote to win, got %q", result.Merged.Title)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("Expected 1 whole-record conflict, got %d", len(result.Conflicts))
	}
	entry := result.Conflicts[0]
	if entry.Field != "" {
		t.Errorf("Whole-record conflict should have no field, got %q", entry.Field)
	}
	if entry.Resolution != attic.ResolutionRemote+", "+attic.ResolutionEarlierWins {
		t.Errorf("Unexpected resolution %q", entry.Resolution)
	}
}

// TestMergeNilBaseIdenticalCopies verifies that identical independent
// creations merge silently.
func TestMergeNilBaseIdenticalCopies(t *testing.T) {
	m, _ := testMerger(t)
	local := baseRecord()
	remote := baseRecord()

	result, err := m.Merge(nil, local, remote)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("Identical copies should not conflict, got %d", len(result.Conflicts))
	}
}

// TestMergeRejectsMismatchedIDs verifies the id guard.
func TestMergeRejectsMismatchedIDs(t *testing.T) {
	m, _ := testMerger(t)
	local := baseRecord()
	remote := baseRecord()
	remote.ID = "rec-ffffffffffff"

	if _, err := m.Merge(nil, local, remote); err == nil {
		t.Error("Expected error merging records with different ids")
	}
}

// TestMergeRequiresBothSides verifies nil local or remote is rejected.
func TestMergeRequiresBothSides(t *testing.T) {
	m, _ := testMerger(t)
	rec := baseRecord()

	if _, err := m.Merge(nil, nil, rec); err == nil {
		t.Error("Expected error with nil local")
	}
	if _, err := m.Merge(nil, rec, nil); err == nil {
		t.Error("Expected error with nil remote")
	}
}

// TestMergeArchiveFailureFailsMerge verifies that a merge whose conflict
// cannot be archived reports failure instead of silently dropping the value.
func TestMergeArchiveFailureFailsMerge(t *testing.T) {
	// A regular file where the attic directory should be makes every
	// archive attempt fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}
	m := New(attic.New(filepath.Join(blocker, "attic", "conflicts.yml")))
	m.now = func() time.Time { return mergeTime }

	base := baseRecord()
	local := base.Clone()
	local.Title = "local"
	local.Touch()
	remote := base.Clone()
	remote.Title = "remote"
	remote.Touch()

	if _, err := m.Merge(base, local, remote); err == nil {
		t.Error("Expected merge to fail when the conflict cannot be archived")
	}
}

// TestMergeDoesNotMutateInputs verifies the three input records come back
// byte-for-byte untouched.
func TestMergeDoesNotMutateInputs(t *testing.T) {
	m, _ := testMerger(t)
	base := baseRecord()
	local := base.Clone()
	local.Title = "local"
	local.Touch()
	remote := base.Clone()
	remote.Title = "remote"
	remote.Touch()

	baseCopy := base.Clone()
	localCopy := local.Clone()
	remoteCopy := remote.Clone()

	if _, err := m.Merge(base, local, remote); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	if diff := cmp.Diff(baseCopy, base); diff != "" {
		t.Errorf("Base mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(localCopy, local); diff != "" {
		t.Errorf("Local mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(remoteCopy, remote); diff != "" {
		t.Errorf("Remote mutated (-want +got):\n%s", diff)
	}
}
