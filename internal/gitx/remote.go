package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// HasRemote returns true if the named remote is configured.
func (r *Repo) HasRemote(ctx context.Context, remote string) bool {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", remote)
	cmd.Dir = r.root
	return cmd.Run() == nil
}

// TrackingRef returns the remote-tracking ref for a branch.
func TrackingRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}

// Fetch fetches the branch from the remote, updating its tracking ref.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	if !r.HasRemote(ctx, remote) {
		return fmt.Errorf("%w: %s", ErrNoRemote, remote)
	}

	refspec := fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remote, branch)
	cmd := exec.CommandContext(ctx, "git", "fetch", remote, refspec)
	cmd.Dir = r.root

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git fetch failed: %w\n%s", err, string(output))
	}
	return nil
}

// Push pushes the local branch to the remote.
//
// A non-fast-forward rejection is returned as ErrPushRejected so the caller
// can fetch, merge, and retry. Every other failure (auth, network,
// permission) is returned as-is: those are terminal and must never be
// reported as success.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if !r.HasRemote(ctx, remote) {
		return fmt.Errorf("%w: %s", ErrNoRemote, remote)
	}

	cmd := exec.CommandContext(ctx, "git", "push", remote, branch+":"+branch)
	cmd.Dir = r.root

	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := string(output)
		if strings.Contains(outputStr, "non-fast-forward") ||
			strings.Contains(outputStr, "fetch first") ||
			strings.Contains(outputStr, "[rejected]") {
			return fmt.Errorf("%w\n%s", ErrPushRejected, outputStr)
		}
		return fmt.Errorf("git push failed: %w\n%s", err, outputStr)
	}
	return nil
}
