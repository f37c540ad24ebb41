// Package idmap maintains the bidirectional mapping between permanent
// internal record identifiers and short human-facing ids.
//
// The whole mapping lives in a single YAML file that is read and written
// wholesale. Short ids are locally unique and immutable once assigned: the
// same internal id always yields the same short id for the life of the
// mapping store.
package idmap

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/taskbeads/tbd/internal/types"
)

// ErrUnknownID is returned by Resolve for ids with no mapping.
var ErrUnknownID = errors.New("unknown id")

// ShortPrefix is the prefix for short display ids.
const ShortPrefix = "tbd-"

// shortAlphabet excludes visually ambiguous characters (0/1/i/l/o).
const shortAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// Generation starts at this suffix length and grows when a length is
// saturated enough that candidates keep colliding.
const (
	initialShortLen  = 3
	collisionsPerLen = 5
	maxShortLen      = 8
)

// Store holds the short id mapping for one project.
type Store struct {
	path string
	log  *slog.Logger

	shortToInternal map[string]string
	internalToShort map[string]string

	// randIndex is swappable for deterministic tests.
	randIndex func(n int) (int, error)
}

// Load reads the mapping file at path. A missing file yields an empty store.
//
// Duplicate short ids in a hand-merged file are tolerated with a
// last-occurrence-wins policy and a warning urging a rewrite.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:            path,
		log:             logger,
		shortToInternal: make(map[string]string),
		internalToShort: make(map[string]string),
		randIndex:       cryptoRandIndex,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read id mapping file: %w", err)
	}

	// Decode through yaml.Node instead of a map so duplicate keys (from an
	// improperly resolved manual merge) degrade to a warning, not an error.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse id mapping file %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return s, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("id mapping file %s: expected a mapping at top level", path)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		short := root.Content[i].Value
		internal := root.Content[i+1].Value
		if prev, dup := s.shortToInternal[short]; dup {
			s.log.Warn("duplicate short id in mapping file, keeping last occurrence; rewrite the file to repair it",
				"path", path, "short_id", short, "discarded", prev)
		}
		s.shortToInternal[short] = internal
	}
	for short, internal := range s.shortToInternal {
		s.internalToShort[internal] = short
	}

	return s, nil
}

// Path returns the mapping file location.
func (s *Store) Path() string { return s.path }

// Resolve maps a short or internal id to the internal id.
func (s *Store) Resolve(id string) (string, error) {
	if internal, ok := s.shortToInternal[id]; ok {
		return internal, nil
	}
	if _, ok := s.internalToShort[id]; ok {
		return id, nil
	}
	// An unmapped internal id is still a valid internal id.
	if strings.HasPrefix(id, types.IDPrefix) {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownID, id)
}

// ShortFor returns the short id assigned to an internal id, if any.
func (s *Store) ShortFor(internal string) (string, bool) {
	short, ok := s.internalToShort[internal]
	return short, ok
}

// Assign returns the short id for an internal id, generating and persisting
// a fresh one on first use. Generation retries on collision, growing the
// suffix length when a length keeps colliding.
func (s *Store) Assign(internal string) (string, error) {
	if short, ok := s.internalToShort[internal]; ok {
		return short, nil
	}

	short, err := s.generate()
	if err != nil {
		return "", err
	}

	s.shortToInternal[short] = internal
	s.internalToShort[internal] = short
	if err := s.save(); err != nil {
		delete(s.shortToInternal, short)
		delete(s.internalToShort, internal)
		return "", err
	}
	return short, nil
}

func (s *Store) generate() (string, error) {
	for length := initialShortLen; length <= maxShortLen; length++ {
		for attempt := 0; attempt < collisionsPerLen; attempt++ {
			suffix := make([]byte, length)
			for i := range suffix {
				idx, err := s.randIndex(len(shortAlphabet))
				if err != nil {
					return "", fmt.Errorf("failed to generate short id: %w", err)
				}
				suffix[i] = shortAlphabet[idx]
			}
			candidate := ShortPrefix + string(suffix)
			if _, taken := s.shortToInternal[candidate]; !taken {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("failed to generate a unique short id after exhausting lengths up to %d", maxShortLen)
}

// save writes the whole mapping atomically, sorted for stable diffs on the
// sync branch.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create id mapping directory: %w", err)
	}

	shorts := make([]string, 0, len(s.shortToInternal))
	for short := range s.shortToInternal {
		shorts = append(shorts, short)
	}
	sort.Strings(shorts)

	var buf bytes.Buffer
	for _, short := range shorts {
		fmt.Fprintf(&buf, "%s: %s\n", short, s.shortToInternal[short])
	}

	if err := atomic.WriteFile(s.path, &buf); err != nil {
		return fmt.Errorf("failed to write id mapping file: %w", err)
	}
	return nil
}

func cryptoRandIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
