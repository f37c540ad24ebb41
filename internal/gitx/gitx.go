// Package gitx wraps the git commands needed to use a branch as a record
// transport: repository discovery, ref inspection, fetch/push with a typed
// rejection taxonomy, and plumbing-level commit construction on a branch
// that is never checked out.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repo is a handle on one git repository.
type Repo struct {
	// root is the repository root directory path
	root string

	// gitDir is the .git directory path (may differ for worktrees)
	gitDir string
}

// Open locates the repository containing path.
func Open(path string) (*Repo, error) {
	rootOut, err := runIn(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, ErrNotInRepo
	}
	dirOut, err := runIn(path, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, ErrNotInRepo
	}
	return &Repo{
		root:   strings.TrimSpace(rootOut),
		gitDir: strings.TrimSpace(dirOut),
	}, nil
}

// Root returns the repository root directory path.
func (r *Repo) Root() string { return r.root }

// GitDir returns the .git directory path.
func (r *Repo) GitDir() string { return r.gitDir }

// Exec executes a raw git command in the repository, returning combined
// output. Extra environment entries are appended to the inherited
// environment; configuration is always threaded per-call, never set
// process-globally, so concurrent operations cannot interfere.
func (r *Repo) Exec(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, string(output))
	}
	return string(output), nil
}

// output runs a git command and returns trimmed stdout only.
func (r *Repo) output(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func runIn(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
