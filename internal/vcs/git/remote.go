package git

import (
	"context"
	"strings"

	"github.com/spoolhq/spool/internal/vcs"
)

// HasRemote reports whether the named remote is configured.
func (r *Repo) HasRemote(ctx context.Context, name string) bool {
	_, err := r.run(ctx, nil, "remote", "get-url", name)
	return err == nil
}

// Remotes returns configured remote names.
func (r *Repo) Remotes(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, nil, "remote")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Fetch updates the remote-tracking ref for branch. A branch that does not
// exist on the remote yet is not an error; the caller checks
// RemoteBranchExists afterward.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	out, err := r.run(ctx, nil, "fetch", remote, branch)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "couldn't find remote ref") {
			return nil
		}
		return err
	}
	return nil
}

// Push pushes branch to remote. Failures come back as *vcs.PushError carrying
// the failure class, so the caller's retry loop never parses git output
// itself.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	out, err := r.run(ctx, nil, "push", remote, branch)
	if err != nil {
		return &vcs.PushError{
			Class:  vcs.Classify(out),
			Output: out,
			Err:    err,
		}
	}
	return nil
}
