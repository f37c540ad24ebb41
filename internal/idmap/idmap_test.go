package idmap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func loadStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return s
}

// TestAssignIsStable verifies assigning the same internal id twice returns
// the same short id, including across a reload.
func TestAssignIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idmap.yml")
	s := loadStore(t, path)

	internal := "rec-0123456789ab"
	first, err := s.Assign(internal)
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if !strings.HasPrefix(first, ShortPrefix) {
		t.Errorf("Short id %q missing prefix %q", first, ShortPrefix)
	}

	second, err := s.Assign(internal)
	if err != nil {
		t.Fatalf("Second Assign() failed: %v", err)
	}
	if second != first {
		t.Errorf("Assign not stable: %q then %q", first, second)
	}

	reloaded := loadStore(t, path)
	third, err := reloaded.Assign(internal)
	if err != nil {
		t.Fatalf("Assign() after reload failed: %v", err)
	}
	if third != first {
		t.Errorf("Assign not stable across reload: %q then %q", first, third)
	}
}

// TestResolve covers short ids, mapped and unmapped internal ids, and
// unknown ids.
func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idmap.yml")
	s := loadStore(t, path)

	internal := "rec-0123456789ab"
	short, err := s.Assign(internal)
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}

	if got, err := s.Resolve(short); err != nil || got != internal {
		t.Errorf("Resolve(%q) = %q, %v; want %q", short, got, err, internal)
	}
	if got, err := s.Resolve(internal); err != nil || got != internal {
		t.Errorf("Resolve(%q) = %q, %v; want %q", internal, got, err, internal)
	}

	// An internal id without a short mapping still resolves to itself.
	other := "rec-ffffffffffff"
	if got, err := s.Resolve(other); err != nil || got != other {
		t.Errorf("Resolve(%q) = %q, %v; want passthrough", other, got, err)
	}

	if _, err := s.Resolve("nonsense"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Expected ErrUnknownID, got %v", err)
	}
}

// TestGenerateGrowsOnCollision verifies generation retries and lengthens
// the suffix when candidates keep colliding.
func TestGenerateGrowsOnCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idmap.yml")
	s := loadStore(t, path)

	// Deterministic generator: always picks index 0, so every candidate of
	// one length is identical.
	s.randIndex = func(n int) (int, error) { return 0, nil }

	first, err := s.Assign("rec-000000000001")
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if first != ShortPrefix+"222" {
		t.Errorf("Expected deterministic tbd-222, got %q", first)
	}

	// The only length-3 candidate is taken now; the next assignment must
	// grow to length 4.
	second, err := s.Assign("rec-000000000002")
	if err != nil {
		t.Fatalf("Assign() after collision failed: %v", err)
	}
	if second != ShortPrefix+"2222" {
		t.Errorf("Expected suffix growth to tbd-2222, got %q", second)
	}
}

// TestLoadDuplicateShortIDs verifies a mapping file with duplicate keys
// loads with last-occurrence-wins instead of failing.
func TestLoadDuplicateShortIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idmap.yml")
	content := "tbd-abc: rec-000000000001\ntbd-abc: rec-000000000002\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write mapping file: %v", err)
	}

	s := loadStore(t, path)
	got, err := s.Resolve("tbd-abc")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "rec-000000000002" {
		t.Errorf("Expected last occurrence to win, got %q", got)
	}
}

// TestSaveSortedAndStable verifies the mapping file is written sorted so
// merges on the sync branch see minimal diffs.
func TestSaveSortedAndStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idmap.yml")
	s := loadStore(t, path)

	for _, internal := range []string{"rec-000000000001", "rec-000000000002", "rec-000000000003"} {
		if _, err := s.Assign(internal); err != nil {
			t.Fatalf("Assign(%s) failed: %v", internal, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read mapping file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d:\n%s", len(lines), data)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i-1] >= lines[i] {
			t.Errorf("Mapping file not sorted: %q before %q", lines[i-1], lines[i])
		}
	}
}

// TestAssignRollsBackOnSaveFailure verifies a failed save leaves no
// half-assigned mapping in memory.
func TestAssignRollsBackOnSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	// Point the store at a path whose parent is a regular file, so save
	// must fail.
	s := loadStore(t, filepath.Join(dir, "idmap.yml"))
	s.path = filepath.Join(blocker, "idmap.yml")
	internal := "rec-000000000001"
	if _, err := s.Assign(internal); err == nil {
		t.Fatal("Expected Assign to fail when the file cannot be written")
	}
	if _, ok := s.ShortFor(internal); ok {
		t.Error("Failed assignment left a mapping in memory")
	}
}
