package git

import (
	"context"
	"strings"
)

// WorktreeInfo describes one entry from `git worktree list`.
type WorktreeInfo struct {
	Path   string
	Branch string
}

// AddWorktree checks out an existing branch into a new linked worktree.
func (r *Repo) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := r.run(ctx, nil, "worktree", "add", path, branch)
	return err
}

// AddWorktreeNewBranch creates branch at start (HEAD when empty) and checks
// it out into a new linked worktree.
func (r *Repo) AddWorktreeNewBranch(ctx context.Context, path, branch, start string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if start != "" {
		args = append(args, start)
	}
	_, err := r.run(ctx, nil, args...)
	return err
}

// RemoveWorktree removes a linked worktree. force discards local changes.
func (r *Repo) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.run(ctx, nil, args...)
	return err
}

// PruneWorktrees drops bookkeeping for worktree directories that no longer
// exist on disk.
func (r *Repo) PruneWorktrees(ctx context.Context) error {
	_, err := r.run(ctx, nil, "worktree", "prune")
	return err
}

// ListWorktrees returns all worktrees of the repository, main tree included.
func (r *Repo) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) {
	out, err := r.run(ctx, nil, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var (
		infos []WorktreeInfo
		cur   WorktreeInfo
	)
	flush := func() {
		if cur.Path != "" {
			infos = append(infos, cur)
		}
		cur = WorktreeInfo{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return infos, nil
}
