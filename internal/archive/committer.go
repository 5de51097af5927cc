package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one Commit call
type Result struct {
	// Changed is false when every entry matched the stored content and the
	// archive was not touched
	Changed bool
	Plan    CommitPlan
	Paths   []string
}

// Committer performs diff-aware, atomic multi-file commits
type Committer struct {
	store  Store
	branch string
	logger *slog.Logger
}

// NewCommitter creates a committer writing to branch
func NewCommitter(store Store, branch string, logger *slog.Logger) *Committer {
	if branch == "" {
		branch = "main"
	}
	return &Committer{
		store:  store,
		branch: branch,
		logger: logger,
	}
}

// Branch returns the branch the committer moves
func (c *Committer) Branch() string {
	return c.branch
}

// CommitMessage returns the deterministic message for a cycle date
func CommitMessage(date time.Time) string {
	return "wallpaper: " + date.UTC().Format("2006-01-02")
}

// Commit writes the entries that differ from the branch head in a single
// commit and moves the branch to it. Unchanged input is a no-op on the
// archive. Any failure returns an error wrapping ErrConflict and leaves the
// branch where it was.
func (c *Committer) Commit(ctx context.Context, entries []Entry, message string) (*Result, error) {
	plan := CommitPlan{Branch: c.branch}

	head, err := c.store.Head(ctx, c.branch)
	if err != nil {
		return nil, conflictf("resolve branch head", err)
	}

	changed, err := c.diff(ctx, head, entries)
	if err != nil {
		return nil, err
	}
	if err := plan.Diffed(head, changed); err != nil {
		return nil, conflictf("diff", err)
	}

	if len(changed) == 0 {
		c.logger.Info("archive unchanged, skipping commit", "branch", c.branch, "head", head.CommitSHA)
		return &Result{Changed: false, Plan: plan}, nil
	}

	paths := make([]string, len(changed))
	for i, e := range changed {
		paths[i] = e.Path
	}
	c.logger.Info("archive entries changed", "branch", c.branch, "paths", paths)

	shas, err := c.createBlobs(ctx, changed)
	if err != nil {
		return nil, conflictf("create blobs", err)
	}
	if err := plan.BlobsCreated(shas); err != nil {
		return nil, conflictf("create blobs", err)
	}

	treeSHA, err := c.store.CreateTree(ctx, plan.BaseTreeSHA, plan.TreeEntries())
	if err != nil {
		return nil, conflictf("create tree", err)
	}
	if err := plan.TreeBuilt(treeSHA); err != nil {
		return nil, conflictf("create tree", err)
	}

	commitSHA, err := c.store.CreateCommit(ctx, plan.NewTreeSHA, plan.BaseCommitSHA, message)
	if err != nil {
		return nil, conflictf("create commit", err)
	}
	if err := plan.Committed(commitSHA); err != nil {
		return nil, conflictf("create commit", err)
	}

	if err := c.store.UpdateRef(ctx, c.branch, plan.NewCommitSHA); err != nil {
		c.logger.Warn("archive ref update rejected, commit abandoned",
			"branch", c.branch,
			"commit", plan.NewCommitSHA,
			"error", err)
		return nil, conflictf("update ref", err)
	}
	if err := plan.RefMoved(); err != nil {
		return nil, conflictf("update ref", err)
	}

	c.logger.Info("archive updated",
		"branch", c.branch,
		"commit", plan.NewCommitSHA,
		"tree", plan.NewTreeSHA,
		"files", len(changed))

	return &Result{Changed: true, Plan: plan, Paths: paths}, nil
}

// diff reads every entry's stored counterpart at the head commit and keeps
// the entries that differ
func (c *Committer) diff(ctx context.Context, head Head, entries []Entry) ([]Entry, error) {
	candidates := make([]Entry, len(entries))
	include := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		g.Go(func() error {
			stored, err := c.store.ReadFile(gctx, entry.Path, head.CommitSHA)
			if errors.Is(err, ErrNotFound) {
				entry.PriorSHA = ""
				candidates[i] = entry
				include[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", entry.Path, err)
			}

			entry.PriorSHA = stored.SHA
			candidates[i] = entry

			changed, err := entry.Changed(stored.Content)
			var diffErr *DiffError
			if errors.As(err, &diffErr) {
				c.logger.Warn("stored archive content not comparable, treating as changed",
					"path", entry.Path,
					"error", err)
			}
			include[i] = changed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, conflictf("diff", err)
	}

	var changed []Entry
	for i, e := range candidates {
		if include[i] {
			changed = append(changed, e)
		}
	}
	return changed, nil
}

// createBlobs uploads the changed entries concurrently; blob order follows entry order
func (c *Committer) createBlobs(ctx context.Context, changed []Entry) ([]string, error) {
	shas := make([]string, len(changed))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range changed {
		g.Go(func() error {
			sha, err := c.store.CreateBlob(gctx, entry.Content)
			if err != nil {
				return fmt.Errorf("blob for %s: %w", entry.Path, err)
			}
			shas[i] = sha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shas, nil
}
