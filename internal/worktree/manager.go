// Package worktree manages the hidden checkout of the record branch.
//
// Record data lives on its own branch, checked out into a linked worktree
// under the git common dir, so the user's working branch never shows record
// file changes in its status. The same worktree also hosts transaction
// branches: it switches branches rather than multiplying worktrees, so "what
// the record branch looks like mid-transaction" is answered by a
// read-at-revision, not a file read.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/spoolhq/spool/internal/vcs"
	"github.com/spoolhq/spool/internal/vcs/git"
)

// TxnPrefix namespaces transaction branches so Health can tell a transaction
// apart from a genuinely wrong branch.
const TxnPrefix = "spool-txn/"

// Manager owns the record-branch worktree of one repository.
type Manager struct {
	main   *git.Repo
	branch string
	remote string
}

// NewManager returns a manager for the record branch in the repository that
// contains main. remote may be empty for local-only repositories.
func NewManager(main *git.Repo, branch, remote string) *Manager {
	return &Manager{main: main, branch: branch, remote: remote}
}

// Branch returns the record branch name.
func (m *Manager) Branch() string { return m.branch }

// Remote returns the configured remote name, possibly empty.
func (m *Manager) Remote() string { return m.remote }

// Path returns where the record-branch worktree lives.
func (m *Manager) Path() string {
	return filepath.Join(m.main.StateDir(), "worktrees", m.branch)
}

// Lock takes the exclusive lock guarding the worktree. Only one logical
// operation (sync, transaction, import) may hold it at a time. The returned
// function releases it.
func (m *Manager) Lock() (func(), error) {
	dir := m.main.StateDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, "worktree.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worktree lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another spool operation holds the worktree lock")
	}
	return func() { _ = fl.Unlock() }, nil
}

// Init ensures the worktree exists and is on the record branch, and returns
// a repo handle rooted at it.
//
// Branch resolution order: an existing local branch is checked out as is; a
// branch that exists only on the remote is checked out tracking it; a branch
// that exists nowhere is created from a fresh empty-tree commit so record
// history never entangles with code history.
func (m *Manager) Init(ctx context.Context) (*git.Repo, error) {
	path := m.Path()

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		wt := git.Open(path, m.main.CommonDir())
		if err := m.Health(ctx, wt); err == nil {
			return wt, nil
		}
		// Unhealthy: remove and recreate rather than repair in place.
		if err := m.main.RemoveWorktree(ctx, path, true); err != nil {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("remove unhealthy worktree: %w", err)
			}
		}
		_ = m.main.PruneWorktrees(ctx)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create worktree parent: %w", err)
	}

	switch {
	case m.main.BranchExists(ctx, m.branch):
		if err := m.main.AddWorktree(ctx, path, m.branch); err != nil {
			return nil, err
		}

	case m.remoteBranchExists(ctx):
		// Branching from the remote-tracking ref sets upstream automatically.
		if err := m.main.AddWorktreeNewBranch(ctx, path, m.branch, m.remote+"/"+m.branch); err != nil {
			return nil, err
		}

	default:
		seed, err := m.main.CommitEmptyTree(ctx, "spool: initialize record branch")
		if err != nil {
			return nil, fmt.Errorf("seed record branch: %w", err)
		}
		if err := m.main.CreateBranch(ctx, m.branch, seed); err != nil {
			return nil, err
		}
		if err := m.main.AddWorktree(ctx, path, m.branch); err != nil {
			return nil, err
		}
	}

	return git.Open(path, m.main.CommonDir()), nil
}

func (m *Manager) remoteBranchExists(ctx context.Context) bool {
	if m.remote == "" || !m.main.HasRemote(ctx, m.remote) {
		return false
	}
	if err := m.main.Fetch(ctx, m.remote, m.branch); err != nil {
		return false
	}
	return m.main.RemoteBranchExists(ctx, m.remote, m.branch)
}

// Health verifies the worktree is genuinely attached to the record branch or
// one of its transaction branches. It reports a diagnostic error rather than
// repairing anything itself.
func (m *Manager) Health(ctx context.Context, wt *git.Repo) error {
	if _, err := os.Stat(filepath.Join(wt.Root(), ".git")); err != nil {
		return fmt.Errorf("worktree %s is missing its git link: %w", wt.Root(), err)
	}
	ref, err := wt.CurrentRef(ctx)
	if err != nil {
		return fmt.Errorf("worktree %s: %w", wt.Root(), err)
	}
	if ref == "" {
		return fmt.Errorf("worktree %s is in detached HEAD state, expected branch %s", wt.Root(), m.branch)
	}
	if ref != m.branch && !strings.HasPrefix(ref, TxnPrefix) {
		return fmt.Errorf("worktree %s is on branch %s, expected %s", wt.Root(), ref, m.branch)
	}
	return nil
}

// Commit stages and commits everything pending in the worktree using an
// isolated index, so the repository's primary index is never touched.
// Returns the commit hash, or "" when the tree was clean.
func (m *Manager) Commit(ctx context.Context, wt *git.Repo, message string) (string, error) {
	dirty, err := wt.HasChanges(ctx)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", nil
	}
	idx, err := vcs.NewIndexHandle(wt.IndexDir())
	if err != nil {
		return "", err
	}
	defer idx.Release()
	if err := wt.AddAll(ctx, idx); err != nil {
		return "", err
	}
	return wt.Commit(ctx, idx, message)
}

// ErrNotInitialized reports a worktree that Init has not created yet.
var ErrNotInitialized = errors.New("record worktree not initialized")

// Open returns a handle to the existing worktree without creating it.
func (m *Manager) Open() (*git.Repo, error) {
	path := m.Path()
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotInitialized)
	}
	return git.Open(path, m.main.CommonDir()), nil
}
