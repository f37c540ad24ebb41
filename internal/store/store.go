// Package store provides atomic file-backed persistence for records.
//
// Each record lives in its own frontmatter file under the records directory,
// keyed by internal id. Writes go through temp-file-plus-rename so a crash
// mid-write never leaves a partial file visible to readers or to git.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/taskbeads/tbd/internal/types"
)

// ErrNotFound is returned by Read when no record file exists for the id.
var ErrNotFound = errors.New("record not found")

// ParseError indicates a record file exists but could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed record file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RecordExt is the file extension for record files.
const RecordExt = ".md"

// listReaders bounds the concurrent file reads issued by List.
const listReaders = 8

// Store reads and writes record files in a single directory.
type Store struct {
	dir string
	log *slog.Logger
}

// New creates a Store rooted at dir. If logger is nil, slog.Default is used.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, log: logger}
}

// Dir returns the records directory path.
func (s *Store) Dir() string { return s.dir }

// Path returns the canonical file path for a record id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+RecordExt)
}

// Read loads one record by internal id.
// Returns ErrNotFound if absent, *ParseError if the file is malformed.
func (s *Store) Read(id string) (*types.Record, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}

	rec, err := UnmarshalRecord(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return rec, nil
}

// Write serializes and atomically replaces the record's file.
func (s *Store) Write(rec *types.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid record: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	data, err := MarshalRecord(rec)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(s.Path(rec.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record's file. Absence is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// List enumerates all valid records, sorted by id. File reads fan out
// concurrently since they are independent; parsing stays sequential.
// Malformed files are skipped with a warning rather than aborting the batch.
func (s *Store) List() ([]*types.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), RecordExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, entry.Name()))
	}

	type readResult struct {
		path string
		data []byte
		err  error
	}

	results := make([]readResult, len(paths))
	sem := make(chan struct{}, listReaders)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			data, err := os.ReadFile(path)
			results[i] = readResult{path: path, data: data, err: err}
		}(i, path)
	}
	wg.Wait()

	var records []*types.Record
	for _, res := range results {
		if res.err != nil {
			s.log.Warn("skipping unreadable record file", "path", res.path, "error", res.err)
			continue
		}
		rec, err := UnmarshalRecord(res.data)
		if err != nil {
			s.log.Warn("skipping malformed record file", "path", res.path, "error", err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}
