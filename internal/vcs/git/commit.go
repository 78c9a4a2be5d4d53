package git

import (
	"context"
	"os"
	"strings"

	"github.com/spoolhq/spool/internal/vcs"
)

// Add stages paths into the given isolated index.
func (r *Repo) Add(ctx context.Context, idx *vcs.IndexHandle, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	_, err := r.run(ctx, []string{idx.Env()}, args...)
	return err
}

// AddAll stages the whole tree into the given isolated index.
func (r *Repo) AddAll(ctx context.Context, idx *vcs.IndexHandle) error {
	_, err := r.run(ctx, []string{idx.Env()}, "add", "-A", ".")
	return err
}

// Commit records the isolated index as a commit on the current branch.
// Returns the new commit hash, or "" when the index matched HEAD and nothing
// was committed.
func (r *Repo) Commit(ctx context.Context, idx *vcs.IndexHandle, message string) (string, error) {
	out, err := r.run(ctx, []string{idx.Env()}, "commit", "-m", message)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "nothing to commit") ||
			strings.Contains(strings.ToLower(out), "nothing added to commit") {
			return "", nil
		}
		return "", err
	}
	return r.ResolveRevision(ctx, "HEAD")
}

// CommitEmptyTree creates a parentless commit of an empty tree, without
// touching any branch or the working tree. Used to seed an orphan branch.
func (r *Repo) CommitEmptyTree(ctx context.Context, message string) (string, error) {
	tree, err := r.run(ctx, nil, "hash-object", "-w", "-t", "tree", os.DevNull)
	if err != nil {
		return "", err
	}
	commit, err := r.run(ctx, nil, "commit-tree", strings.TrimSpace(tree), "-m", message)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(commit), nil
}
