package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spoolhq/spool/internal/vcs"
)

// ReadAtRevision returns the contents of path at rev without touching the
// working tree. A path absent at that revision returns vcs.ErrAbsent.
func (r *Repo) ReadAtRevision(ctx context.Context, rev, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "show", rev+":"+path)
	cmd.Dir = r.root
	out, err := cmd.Output()
	if err != nil {
		msg := err.Error()
		if ee, ok := err.(*exec.ExitError); ok {
			msg = string(ee.Stderr)
		}
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "does not exist") ||
			strings.Contains(lower, "exists on disk, but not in") ||
			strings.Contains(lower, "invalid object name") ||
			strings.Contains(lower, "bad revision") {
			return nil, fmt.Errorf("%s at %s: %w", path, rev, vcs.ErrAbsent)
		}
		return nil, fmt.Errorf("git show %s:%s failed: %w\n%s", rev, path, err, msg)
	}
	return out, nil
}

// ListAtRevision returns the file paths under dir at rev. An absent dir
// returns an empty list, matching how an empty store reads.
func (r *Repo) ListAtRevision(ctx context.Context, rev, dir string) ([]string, error) {
	out, err := r.run(ctx, nil, "ls-tree", "-r", "--name-only", rev, "--", dir)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not a tree object") {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
