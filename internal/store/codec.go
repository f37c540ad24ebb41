package store

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskbeads/tbd/internal/types"
)

const frontmatterDelim = "---\n"

// MarshalRecord serializes a record to its file form: a YAML frontmatter
// block with every structured field, followed by the free-text notes body.
func MarshalRecord(rec *types.Record) ([]byte, error) {
	header, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	// Notes are canonicalized without trailing newlines so a write/read
	// round trip never manufactures a field-level diff.
	notes := strings.TrimRight(rec.Notes, "\n")

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim)
	buf.Write(header)
	buf.WriteString(frontmatterDelim)
	if notes != "" {
		buf.WriteString(notes)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord parses a record file: frontmatter header, then notes body.
func UnmarshalRecord(data []byte) (*types.Record, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontmatterDelim) {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}

	rest := content[len(frontmatterDelim):]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	var header, body string
	switch {
	case strings.HasPrefix(rest, frontmatterDelim):
		// Empty header block
		header, body = "", rest[len(frontmatterDelim):]
	case end >= 0:
		header = rest[:end+1]
		body = rest[end+1+len(frontmatterDelim):]
	default:
		return nil, fmt.Errorf("unterminated frontmatter block")
	}

	var rec types.Record
	if err := yaml.Unmarshal([]byte(header), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	rec.Notes = strings.TrimRight(body, "\n")
	rec.SetDefaults()

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return &rec, nil
}
