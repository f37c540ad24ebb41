// Package syncer orchestrates the push/retry loop that keeps the sync
// branch converged with the remote.
//
// One sync pass commits the local workspace state to the sync branch,
// pushes, and on a non-fast-forward rejection fetches the remote tip,
// three-way merges every diverged record against the common base, commits
// the merge, and retries. Retries are bounded; any push failure other than
// a rejection is terminal and surfaces as an explicit failure.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/taskbeads/tbd/internal/attic"
	"github.com/taskbeads/tbd/internal/config"
	"github.com/taskbeads/tbd/internal/gitx"
	"github.com/taskbeads/tbd/internal/merge"
	"github.com/taskbeads/tbd/internal/store"
	"github.com/taskbeads/tbd/internal/types"
)

// ErrRetriesExhausted is returned when the push keeps getting rejected
// after the configured number of reconcile rounds.
var ErrRetriesExhausted = errors.New("push retries exhausted while remote kept advancing")

// Coordinator drives the fetch/merge/push state machine.
type Coordinator struct {
	repo   *gitx.Repo
	writer *gitx.CommitWriter
	merger *merge.Merger
	cfg    *config.Config
	log    *slog.Logger
}

// New creates a Coordinator. If logger is nil, slog.Default is used.
func New(repo *gitx.Repo, merger *merge.Merger, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		repo:   repo,
		writer: gitx.NewCommitWriter(repo),
		merger: merger,
		cfg:    cfg,
		log:    logger,
	}
}

// Sync runs one full synchronization pass and always returns a Result with
// an explicit success/failure discriminant. Success is only reported after
// the remote branch tip provably matches the pushed commit.
func (c *Coordinator) Sync(ctx context.Context) *Result {
	lock, err := acquireLock(c.cfg.LockPath())
	if err != nil {
		return failure(0, Summary{}, nil, err)
	}
	defer lock.release()

	branch := c.cfg.SyncBranch
	remote := c.cfg.SyncRemote
	branchRef := "refs/heads/" + branch
	tracking := gitx.TrackingRef(remote, branch)

	var summary Summary
	var conflicts []attic.Entry

	if err := c.commitLocalState(ctx); err != nil {
		return failure(0, summary, conflicts, err)
	}

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		localTip, err := c.repo.Tip(ctx, branchRef)
		if err != nil {
			return failure(attempt, summary, conflicts, err)
		}

		// Remote tip before this push attempt; what lands beyond it is
		// what this sync sent.
		prevRemote, _ := c.repo.Tip(ctx, tracking)

		c.log.Info("pushing sync branch", "branch", branch, "remote", remote, "attempt", attempt)
		pushErr := c.repo.Push(ctx, remote, branch)
		if pushErr == nil {
			if err := c.verifyPushed(ctx, tracking, localTip); err != nil {
				return failure(attempt, summary, conflicts, err)
			}
			sent, err := c.tallyRange(ctx, prevRemote, localTip)
			if err != nil {
				c.log.Warn("failed to tally sent changes", "error", err)
			}
			summary.Sent = sent

			if err := c.updateWorkdir(ctx, localTip); err != nil {
				c.log.Warn("failed to refresh workspace from sync branch", "error", err)
			}

			return &Result{Success: true, Attempts: attempt, Summary: summary, Conflicts: conflicts}
		}

		if !gitx.IsRetryable(pushErr) {
			// Auth, network, permission: terminal. Never masked as
			// "nothing to sync".
			return failure(attempt, summary, conflicts, pushErr)
		}

		c.log.Info("push rejected, reconciling with remote", "attempt", attempt)
		received, entries, err := c.reconcile(ctx)
		if err != nil {
			return failure(attempt, summary, conflicts, err)
		}
		summary.Received.New += received.New
		summary.Received.Updated += received.Updated
		summary.Received.Deleted += received.Deleted
		conflicts = append(conflicts, entries...)
	}

	return failure(c.cfg.MaxRetries, summary, conflicts, ErrRetriesExhausted)
}

// commitLocalState commits the workspace's record files onto the sync
// branch when they differ from its tip. Creates the branch (orphan commit)
// on first sync.
func (c *Coordinator) commitLocalState(ctx context.Context) error {
	branch := c.cfg.SyncBranch
	changes, err := c.localChanges(ctx, branch)
	if err != nil {
		return err
	}
	if len(changes) == 0 && c.repo.RefExists(branch) {
		return nil
	}

	message := fmt.Sprintf("tbd sync: %s", time.Now().Format("2006-01-02 15:04:05"))
	if _, err := c.writer.Commit(ctx, branch, message, changes); err != nil {
		return fmt.Errorf("failed to commit local state: %w", err)
	}
	c.log.Info("committed local state to sync branch", "branch", branch, "files", len(changes))
	return nil
}

// localChanges diffs the workspace's synced files against the branch tip.
func (c *Coordinator) localChanges(ctx context.Context, branch string) ([]gitx.FileChange, error) {
	recordsPrefix, idmapRel := c.cfg.SyncedPaths()

	local := make(map[string][]byte)
	entries, err := os.ReadDir(c.cfg.RecordsDir())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), store.RecordExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.cfg.RecordsDir(), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read record file: %w", err)
		}
		local[recordsPrefix+entry.Name()] = data
	}
	if data, err := os.ReadFile(c.cfg.IdmapPath()); err == nil {
		local[idmapRel] = data
	}

	branchPaths := make(map[string]bool)
	if c.repo.RefExists(branch) {
		paths, err := c.repo.ListTree(ctx, "refs/heads/"+branch, config.DirName+"/")
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			branchPaths[p] = true
		}
	}

	var changes []gitx.FileChange
	for path, content := range local {
		if branchPaths[path] {
			existing, err := c.repo.ShowFile(ctx, "refs/heads/"+branch, path)
			if err == nil && bytes.Equal(existing, content) {
				continue
			}
		}
		changes = append(changes, gitx.FileChange{Path: path, Content: content})
	}
	for path := range branchPaths {
		if _, ok := local[path]; !ok {
			changes = append(changes, gitx.FileChange{Path: path, Delete: true})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// verifyPushed confirms the remote branch tip now matches (or has advanced
// past) what was pushed. The success discriminant is only set after this
// proof.
func (c *Coordinator) verifyPushed(ctx context.Context, tracking, localTip string) error {
	if err := c.repo.Fetch(ctx, c.cfg.SyncRemote, c.cfg.SyncBranch); err != nil {
		return fmt.Errorf("push reported success but verification fetch failed: %w", err)
	}
	remoteTip, err := c.repo.Tip(ctx, tracking)
	if err != nil {
		return fmt.Errorf("push reported success but remote tip is unreadable: %w", err)
	}
	if remoteTip == localTip {
		return nil
	}
	ancestor, err := c.repo.IsAncestor(ctx, localTip, remoteTip)
	if err != nil {
		return err
	}
	if !ancestor {
		return fmt.Errorf("remote tip %s does not contain pushed commit %s", remoteTip, localTip)
	}
	return nil
}

// reconcile fetches the remote branch and merges every diverged record
// against the last common base, committing the result as a merge commit so
// the next push is a fast-forward from the remote's point of view.
func (c *Coordinator) reconcile(ctx context.Context) (Tally, []attic.Entry, error) {
	branch := c.cfg.SyncBranch
	remote := c.cfg.SyncRemote
	branchRef := "refs/heads/" + branch
	tracking := gitx.TrackingRef(remote, branch)

	if err := c.repo.Fetch(ctx, remote, branch); err != nil {
		return Tally{}, nil, err
	}
	remoteTip, err := c.repo.Tip(ctx, tracking)
	if err != nil {
		return Tally{}, nil, err
	}
	localTip, err := c.repo.Tip(ctx, branchRef)
	if err != nil {
		return Tally{}, nil, err
	}

	if behind, err := c.repo.IsAncestor(ctx, remoteTip, localTip); err != nil {
		return Tally{}, nil, err
	} else if behind {
		// Remote has nothing we lack; the rejection was transient.
		return Tally{}, nil, nil
	}

	base, err := c.repo.MergeBase(ctx, localTip, remoteTip)
	if err != nil {
		return Tally{}, nil, err
	}

	received, err := c.tallyRange(ctx, base, remoteTip)
	if err != nil {
		c.log.Warn("failed to tally received changes", "error", err)
	}

	changes, entries, err := c.mergeTrees(ctx, base, localTip, remoteTip)
	if err != nil {
		return Tally{}, nil, err
	}

	message := fmt.Sprintf("tbd sync: merge remote changes (%d records, %d conflicts)", len(changes), len(entries))
	if _, err := c.writer.Commit(ctx, branch, message, changes, remoteTip); err != nil {
		return Tally{}, nil, fmt.Errorf("failed to commit merge result: %w", err)
	}
	c.log.Info("merged remote changes", "records", len(changes), "conflicts", len(entries))

	return received, entries, nil
}

// mergeTrees computes the staged changes that reconcile the local tree with
// the remote tree, three-way merging each record that diverged.
func (c *Coordinator) mergeTrees(ctx context.Context, base, localTip, remoteTip string) ([]gitx.FileChange, []attic.Entry, error) {
	recordsPrefix, idmapRel := c.cfg.SyncedPaths()

	localPaths, err := c.treeSet(ctx, localTip, recordsPrefix)
	if err != nil {
		return nil, nil, err
	}
	remotePaths, err := c.treeSet(ctx, remoteTip, recordsPrefix)
	if err != nil {
		return nil, nil, err
	}

	all := make(map[string]bool, len(localPaths)+len(remotePaths))
	for p := range localPaths {
		all[p] = true
	}
	for p := range remotePaths {
		all[p] = true
	}
	paths := make([]string, 0, len(all))
	for p := range all {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changes []gitx.FileChange
	var conflicts []attic.Entry

	for _, path := range paths {
		change, entries, err := c.mergeRecordPath(ctx, base, localTip, remoteTip, path, localPaths[path], remotePaths[path])
		if err != nil {
			return nil, nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
		conflicts = append(conflicts, entries...)
	}

	idmapChange, err := c.mergeIdmap(ctx, localTip, remoteTip, idmapRel)
	if err != nil {
		return nil, nil, err
	}
	if idmapChange != nil {
		changes = append(changes, *idmapChange)
	}

	return changes, conflicts, nil
}

// mergeRecordPath reconciles one record path. The merge commit starts from
// the local tree, so "keep local" needs no staged change.
func (c *Coordinator) mergeRecordPath(ctx context.Context, base, localTip, remoteTip, path string, inLocal, inRemote bool) (*gitx.FileChange, []attic.Entry, error) {
	var localBytes, remoteBytes, baseBytes []byte
	var err error
	if inLocal {
		if localBytes, err = c.repo.ShowFile(ctx, localTip, path); err != nil {
			return nil, nil, err
		}
	}
	if inRemote {
		if remoteBytes, err = c.repo.ShowFile(ctx, remoteTip, path); err != nil {
			return nil, nil, err
		}
	}
	if base != "" {
		baseBytes, _ = c.repo.ShowFile(ctx, base, path)
	}

	switch {
	case inLocal && inRemote && bytes.Equal(localBytes, remoteBytes):
		return nil, nil, nil

	case !inRemote:
		// Remote deleted (or never had) the record. Propagate the deletion
		// only when we have not changed it since the base; otherwise our
		// copy survives.
		if baseBytes != nil && bytes.Equal(baseBytes, localBytes) {
			return &gitx.FileChange{Path: path, Delete: true}, nil, nil
		}
		return nil, nil, nil

	case !inLocal:
		// We deleted it; only our own unchanged deletion sticks.
		if baseBytes != nil && bytes.Equal(baseBytes, remoteBytes) {
			return nil, nil, nil
		}
		return &gitx.FileChange{Path: path, Content: remoteBytes}, nil, nil
	}

	localRec, localErr := store.UnmarshalRecord(localBytes)
	remoteRec, remoteErr := store.UnmarshalRecord(remoteBytes)
	switch {
	case localErr != nil && remoteErr != nil:
		c.log.Warn("both copies of record are malformed, keeping local bytes", "path", path, "error", localErr)
		return nil, nil, nil
	case localErr != nil:
		c.log.Warn("local copy of record is malformed, taking remote", "path", path, "error", localErr)
		return &gitx.FileChange{Path: path, Content: remoteBytes}, nil, nil
	case remoteErr != nil:
		c.log.Warn("remote copy of record is malformed, keeping local", "path", path, "error", remoteErr)
		return nil, nil, nil
	}

	// A malformed or absent base degrades to a nil base: both sides are
	// treated as independent creations of the same id.
	var baseRec *types.Record
	if baseBytes != nil {
		if rec, err := store.UnmarshalRecord(baseBytes); err == nil {
			baseRec = rec
		}
	}

	result, err := c.merger.Merge(baseRec, localRec, remoteRec)
	if err != nil {
		return nil, nil, err
	}

	mergedBytes, err := store.MarshalRecord(result.Merged)
	if err != nil {
		return nil, nil, err
	}
	if bytes.Equal(mergedBytes, localBytes) {
		return nil, result.Conflicts, nil
	}
	return &gitx.FileChange{Path: path, Content: mergedBytes}, result.Conflicts, nil
}

// mergeIdmap unions the two sides of the id mapping file. Short ids are
// immutable once assigned, so a collision (same short id, different
// internal id) keeps the local assignment and logs a warning.
func (c *Coordinator) mergeIdmap(ctx context.Context, localTip, remoteTip, idmapRel string) (*gitx.FileChange, error) {
	localBytes, localErr := c.repo.ShowFile(ctx, localTip, idmapRel)
	remoteBytes, remoteErr := c.repo.ShowFile(ctx, remoteTip, idmapRel)
	if remoteErr != nil {
		return nil, nil // Nothing to merge in.
	}
	if localErr != nil {
		return &gitx.FileChange{Path: idmapRel, Content: remoteBytes}, nil
	}
	if bytes.Equal(localBytes, remoteBytes) {
		return nil, nil
	}

	localMap := map[string]string{}
	remoteMap := map[string]string{}
	if err := yaml.Unmarshal(localBytes, &localMap); err != nil {
		c.log.Warn("local id mapping is malformed, taking remote", "error", err)
		return &gitx.FileChange{Path: idmapRel, Content: remoteBytes}, nil
	}
	if err := yaml.Unmarshal(remoteBytes, &remoteMap); err != nil {
		c.log.Warn("remote id mapping is malformed, keeping local", "error", err)
		return nil, nil
	}

	merged := make(map[string]string, len(localMap)+len(remoteMap))
	for short, internal := range localMap {
		merged[short] = internal
	}
	for short, internal := range remoteMap {
		if existing, ok := merged[short]; ok {
			if existing != internal {
				c.log.Warn("short id collision in id mapping, keeping local assignment",
					"short_id", short, "local", existing, "remote", internal)
			}
			continue
		}
		merged[short] = internal
	}

	shorts := make([]string, 0, len(merged))
	for short := range merged {
		shorts = append(shorts, short)
	}
	sort.Strings(shorts)
	var buf bytes.Buffer
	for _, short := range shorts {
		fmt.Fprintf(&buf, "%s: %s\n", short, merged[short])
	}

	content := buf.Bytes()
	if bytes.Equal(content, localBytes) {
		return nil, nil
	}
	return &gitx.FileChange{Path: idmapRel, Content: content}, nil
}

// updateWorkdir mirrors the synced tree back into the workspace so reads
// after a sync see the merged state.
func (c *Coordinator) updateWorkdir(ctx context.Context, tip string) error {
	recordsPrefix, idmapRel := c.cfg.SyncedPaths()

	paths, err := c.repo.ListTree(ctx, tip, config.DirName+"/")
	if err != nil {
		return err
	}
	inTree := make(map[string]bool, len(paths))
	for _, path := range paths {
		inTree[path] = true
		if !strings.HasPrefix(path, recordsPrefix) && path != idmapRel {
			continue
		}
		content, err := c.repo.ShowFile(ctx, tip, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(c.cfg.Root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := atomic.WriteFile(dst, bytes.NewReader(content)); err != nil {
			return err
		}
	}

	// Drop workspace records that no longer exist on the branch.
	entries, err := os.ReadDir(c.cfg.RecordsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), store.RecordExt) {
			continue
		}
		if !inTree[recordsPrefix+entry.Name()] {
			if err := os.Remove(filepath.Join(c.cfg.RecordsDir(), entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// treeSet returns the set of paths under prefix in a commit's tree.
func (c *Coordinator) treeSet(ctx context.Context, tip, prefix string) (map[string]bool, error) {
	paths, err := c.repo.ListTree(ctx, tip, prefix)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set, nil
}

// tallyRange counts record-level changes between two commits. An empty from
// means everything in to counts as new.
func (c *Coordinator) tallyRange(ctx context.Context, from, to string) (Tally, error) {
	recordsPrefix, _ := c.cfg.SyncedPaths()

	var tally Tally
	if from == "" {
		paths, err := c.repo.ListTree(ctx, to, recordsPrefix)
		if err != nil {
			return tally, err
		}
		tally.New = len(paths)
		return tally, nil
	}

	diffs, err := c.repo.DiffNameStatus(ctx, from, to, recordsPrefix)
	if err != nil {
		return tally, err
	}
	for _, d := range diffs {
		tally.add(d.Status)
	}
	return tally, nil
}
