package gitx

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FileChange is one staged path for an isolated commit.
type FileChange struct {
	// Path is relative to the repository root.
	Path string

	// Content is the full file content. Ignored when Delete is set.
	Content []byte

	// Delete removes the path from the tree instead of writing it.
	Delete bool
}

// CommitWriter builds commits on a branch through a private index, without
// ever touching the caller's staging area or working tree. The invoking
// process may have unrelated work staged; none of it is disturbed.
//
// Only one commit per private index may be in flight at a time; the writer
// creates a fresh index file per call, so concurrent calls on one Repo are
// safe from each other but the sync coordinator still serializes them.
type CommitWriter struct {
	repo *Repo
}

// NewCommitWriter creates a writer for the repository.
func NewCommitWriter(repo *Repo) *CommitWriter {
	return &CommitWriter{repo: repo}
}

// Commit stages the changes onto branch's current tree (an empty tree if
// the branch does not exist yet), writes a tree and commit object, and
// atomically advances the branch ref. extraParents adds merge parents
// (the fetched remote tip, for merge commits).
//
// The branch ref is advanced with compare-and-swap against the tip observed
// at the start, so any failure along the way leaves the ref unmoved.
func (w *CommitWriter) Commit(ctx context.Context, branch, message string, changes []FileChange, extraParents ...string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	indexFile, err := w.tempIndexPath()
	if err != nil {
		return "", err
	}
	defer os.Remove(indexFile)

	// The private index is threaded as an explicit per-invocation
	// environment value, never set process-globally.
	env := []string{"GIT_INDEX_FILE=" + indexFile}

	var oldTip string
	if w.repo.RefExists(branch) {
		oldTip, err = w.repo.Tip(ctx, "refs/heads/"+branch)
		if err != nil {
			return "", err
		}
		if _, err := w.repo.Exec(ctx, env, "read-tree", oldTip); err != nil {
			return "", fmt.Errorf("failed to load tree for %s: %w", branch, err)
		}
	} else {
		if _, err := w.repo.Exec(ctx, env, "read-tree", "--empty"); err != nil {
			return "", fmt.Errorf("failed to initialize private index: %w", err)
		}
	}

	for _, change := range changes {
		if change.Delete {
			if _, err := w.repo.Exec(ctx, env, "update-index", "--force-remove", "--", change.Path); err != nil {
				return "", fmt.Errorf("failed to stage deletion of %s: %w", change.Path, err)
			}
			continue
		}

		oid, err := w.hashObject(ctx, change.Content)
		if err != nil {
			return "", fmt.Errorf("failed to write blob for %s: %w", change.Path, err)
		}
		cacheinfo := fmt.Sprintf("100644,%s,%s", oid, change.Path)
		if _, err := w.repo.Exec(ctx, env, "update-index", "--add", "--cacheinfo", cacheinfo); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", change.Path, err)
		}
	}

	tree, err := w.repo.output(ctx, env, "write-tree")
	if err != nil {
		return "", fmt.Errorf("failed to write tree: %w", err)
	}

	args := []string{"commit-tree", tree, "-m", message}
	for _, parent := range parentSet(oldTip, extraParents) {
		args = append(args, "-p", parent)
	}
	commitID, err := w.repo.output(ctx, nil, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}

	// Compare-and-swap: an empty old value requires the ref to not exist,
	// so the branch never partially advances.
	if _, err := w.repo.Exec(ctx, nil, "update-ref", "refs/heads/"+branch, commitID, oldTip); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleRef, err)
	}

	return commitID, nil
}

// hashObject writes content into the object database and returns its id.
func (w *CommitWriter) hashObject(ctx context.Context, content []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "hash-object", "-w", "--stdin")
	cmd.Dir = w.repo.root
	cmd.Stdin = bytes.NewReader(content)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git hash-object failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// tempIndexPath returns a fresh private index path inside the git dir.
func (w *CommitWriter) tempIndexPath() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to create private index name: %w", err)
	}
	name := fmt.Sprintf("tbd-index-%d-%s", os.Getpid(), hex.EncodeToString(buf[:]))
	return filepath.Join(w.repo.gitDir, name), nil
}

// parentSet deduplicates commit parents, keeping the branch tip first.
func parentSet(oldTip string, extras []string) []string {
	var parents []string
	if oldTip != "" {
		parents = append(parents, oldTip)
	}
	for _, p := range extras {
		if p == "" {
			continue
		}
		dup := false
		for _, seen := range parents {
			if seen == p {
				dup = true
				break
			}
		}
		if !dup {
			parents = append(parents, p)
		}
	}
	return parents
}
