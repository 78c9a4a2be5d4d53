// Package git wraps the git commands the sync engine needs: repository
// discovery, branch and remote management, content reads at a revision,
// commits against an isolated index, and worktree lifecycle.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spoolhq/spool/internal/vcs"
)

// Repo is a handle to one git repository (or linked worktree).
type Repo struct {
	// root is the working tree root
	root string

	// commonDir is the shared .git directory. For a linked worktree this
	// is the main repository's .git, not the per-worktree gitdir.
	commonDir string
}

// New discovers the repository containing path.
func New(path string) (*Repo, error) {
	root, err := output(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not inside a git repository: %w", err)
	}
	common, err := output(root, "rev-parse", "--git-common-dir")
	if err != nil {
		return nil, fmt.Errorf("resolve git common dir: %w", err)
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(root, common)
	}
	return &Repo{root: root, commonDir: filepath.Clean(common)}, nil
}

// Open returns a handle for a directory already known to be a working tree
// root, without re-running discovery. Used for worktrees we created ourselves.
func Open(root, commonDir string) *Repo {
	return &Repo{root: root, commonDir: commonDir}
}

// Root returns the working tree root.
func (r *Repo) Root() string { return r.root }

// CommonDir returns the shared .git directory.
func (r *Repo) CommonDir() string { return r.commonDir }

// StateDir returns the spool state directory under the common dir. Local
// state lives here so linked worktrees of the same repository share it.
func (r *Repo) StateDir() string {
	return filepath.Join(r.commonDir, "spool")
}

// run executes git in the repository and returns combined output. Errors wrap
// the command line and output so failures are diagnosable from the message
// alone.
func (r *Repo) run(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// output runs git in dir and returns trimmed stdout.
func output(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StatusPorcelain returns porcelain status output, optionally limited to
// paths. Empty output means a clean tree.
func (r *Repo) StatusPorcelain(ctx context.Context, paths ...string) (string, error) {
	args := append([]string{"status", "--porcelain"}, paths...)
	out, err := r.run(ctx, nil, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HasChanges reports whether the working tree has uncommitted changes,
// optionally limited to paths.
func (r *Repo) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	out, err := r.StatusPorcelain(ctx, paths...)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// ResolveRevision resolves a revision expression to a commit hash.
func (r *Repo) ResolveRevision(ctx context.Context, rev string) (string, error) {
	out, err := r.run(ctx, nil, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IndexDir returns the directory for isolated index files.
func (r *Repo) IndexDir() string {
	return vcs.DefaultIndexDir(r.commonDir)
}
