package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RefExists returns true if the named local branch exists.
func (r *Repo) RefExists(name string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.root
	return cmd.Run() == nil
}

// Tip resolves a ref to its commit hash.
func (r *Repo) Tip(ctx context.Context, ref string) (string, error) {
	out, err := r.output(ctx, nil, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	return out, nil
}

// MergeBase returns the best common ancestor of two commits, or empty if
// the histories are unrelated.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-base", a, b)
	cmd.Dir = r.root
	out, err := cmd.Output()
	if err != nil {
		// Exit status 1 means no common ancestor; anything else is a failure.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("git merge-base failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsAncestor reports whether commit a is an ancestor of commit b.
func (r *Repo) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-base", "--is-ancestor", a, b)
	cmd.Dir = r.root
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base --is-ancestor failed: %w", err)
}

// ListTree returns all file paths under prefix in the given ref's tree.
func (r *Repo) ListTree(ctx context.Context, ref, prefix string) ([]string, error) {
	args := []string{"ls-tree", "-r", "--name-only", ref}
	if prefix != "" {
		args = append(args, "--", prefix)
	}
	out, err := r.output(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tree of %s: %w", ref, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ShowFile extracts a file's content from a specific ref.
// Used to read base/remote record copies without a checkout.
func (r *Repo) ShowFile(ctx context.Context, ref, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "show", ref+":"+path)
	cmd.Dir = r.root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%s", ErrFileNotInRef, ref, path)
	}
	return out, nil
}

// DiffStatus describes one changed path between two trees.
type DiffStatus struct {
	Path   string
	Status byte // A, M, or D
}

// DiffNameStatus lists path-level changes from one tree to another,
// optionally limited to a prefix.
func (r *Repo) DiffNameStatus(ctx context.Context, from, to, prefix string) ([]DiffStatus, error) {
	args := []string{"diff", "--name-status", from, to}
	if prefix != "" {
		args = append(args, "--", prefix)
	}
	out, err := r.output(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", from, to, err)
	}

	var changes []DiffStatus
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 || len(parts[0]) == 0 {
			continue
		}
		changes = append(changes, DiffStatus{Path: parts[1], Status: parts[0][0]})
	}
	return changes, nil
}
