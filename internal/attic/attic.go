// Package attic preserves every value a merge discards.
//
// The attic is an append-only conflict log, one file per project. Each entry
// records the losing value, the winner, and how the winner was chosen, so a
// merge never silently loses data: anything dropped can be audited and
// recovered by reading the log independently of the merge engine.
package attic

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Resolution values describe how a conflict winner was chosen.
const (
	ResolutionLocal         = "local"
	ResolutionRemote        = "remote"
	ResolutionUnion         = "union"
	ResolutionMax           = "max"
	ResolutionImmutableBase = "immutable-base-retained"
	ResolutionEarlierWins   = "earlier-created-wins"
)

// Entry is one archived conflict: a value that a merge had to discard.
// Field is empty for whole-record collisions (two independent creations
// under the same id).
type Entry struct {
	// Key is a filesystem-safe, colon-free timestamp identifying the entry.
	Key string `yaml:"key"`

	RecordID      string    `yaml:"record_id"`
	Field         string    `yaml:"field,omitempty"`
	Timestamp     time.Time `yaml:"timestamp"`
	LostValue     any       `yaml:"lost_value"`
	WinnerValue   any       `yaml:"winner_value"`
	LocalVersion  int       `yaml:"local_version"`
	RemoteVersion int       `yaml:"remote_version"`
	Resolution    string    `yaml:"resolution"`
}

// keyFormat is colon-free so keys stay filesystem-safe on every platform.
const keyFormat = "20060102T150405.000000000"

// Archiver appends conflict entries to the project's conflict log.
type Archiver struct {
	path string
}

// New creates an Archiver writing to the given log file path.
func New(path string) *Archiver {
	return &Archiver{path: path}
}

// Path returns the conflict log location.
func (a *Archiver) Path() string { return a.path }

// Archive appends the entry to the log. The write is flushed to disk before
// returning; an error here must fail the merge that produced the entry, so
// callers archive before committing merge results.
func (a *Archiver) Archive(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Key == "" {
		entry.Key = entry.Timestamp.UTC().Format(keyFormat)
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("failed to create attic directory: %w", err)
	}

	data, err := yaml.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict entry: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open conflict log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "---\n%s", data); err != nil {
		return fmt.Errorf("failed to append conflict entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to flush conflict log: %w", err)
	}
	return nil
}

// List reads back every archived entry, oldest first.
func (a *Archiver) List() ([]Entry, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open conflict log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	dec := yaml.NewDecoder(f)
	for {
		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode conflict log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
