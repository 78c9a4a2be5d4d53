package git

import (
	"context"
	"fmt"
	"strings"
)

// CurrentRef returns the current branch name, or "" in detached HEAD state.
func (r *Repo) CurrentRef(ctx context.Context) (string, error) {
	out, err := r.run(ctx, nil, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		if strings.Contains(err.Error(), "not a symbolic ref") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, nil, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// RemoteBranchExists reports whether a remote-tracking ref exists locally.
// Run after a fetch to learn whether the branch exists on the remote.
func (r *Repo) RemoteBranchExists(ctx context.Context, remote, name string) bool {
	_, err := r.run(ctx, nil, "show-ref", "--verify", "--quiet",
		fmt.Sprintf("refs/remotes/%s/%s", remote, name))
	return err == nil
}

// CreateBranch creates a branch at base, or at HEAD when base is empty.
func (r *Repo) CreateBranch(ctx context.Context, name, base string) error {
	args := []string{"branch", name}
	if base != "" {
		args = append(args, base)
	}
	_, err := r.run(ctx, nil, args...)
	return err
}

// DeleteBranch deletes a local branch. force uses -D.
func (r *Repo) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.run(ctx, nil, "branch", flag, name)
	return err
}

// ListBranches returns local branch names.
func (r *Repo) ListBranches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, nil, "for-each-ref", "--format=%(refname:short)", "refs/heads")
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

// CheckoutBranch switches the working tree to an existing branch.
func (r *Repo) CheckoutBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, nil, "checkout", name)
	return err
}

// CheckoutOrphan switches to a new branch with no parent commit and clears
// the tree. Used when the record branch exists nowhere yet.
func (r *Repo) CheckoutOrphan(ctx context.Context, name string) error {
	if _, err := r.run(ctx, nil, "checkout", "--orphan", name); err != nil {
		return err
	}
	// An orphan checkout keeps the previous branch's files staged.
	if out, err := r.run(ctx, nil, "rm", "-rf", "--ignore-unmatch", "."); err != nil {
		return fmt.Errorf("clear orphan tree: %w\n%s", err, out)
	}
	return nil
}

// MergeBase returns the common ancestor of two revisions, or "" when the
// histories are unrelated.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := r.run(ctx, nil, "merge-base", a, b)
	if err != nil {
		// Exit status 1 with no ancestor is expected for orphan histories.
		if strings.Contains(err.Error(), "exit status 1") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevListCounts returns how many commits each side has beyond the common
// ancestor: ahead is commits only in local, behind commits only in remote.
func (r *Repo) RevListCounts(ctx context.Context, local, remote string) (ahead, behind int, err error) {
	out, err := r.run(ctx, nil, "rev-list", "--left-right", "--count", local+"..."+remote)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	if _, err := fmt.Sscanf(fields[0]+" "+fields[1], "%d %d", &ahead, &behind); err != nil {
		return 0, 0, fmt.Errorf("parse rev-list counts %q: %w", out, err)
	}
	return ahead, behind, nil
}

// ResetHard resets the current branch and working tree to rev.
func (r *Repo) ResetHard(ctx context.Context, rev string) error {
	_, err := r.run(ctx, nil, "reset", "--hard", rev)
	return err
}

// Clean removes untracked files and directories from the working tree.
func (r *Repo) Clean(ctx context.Context) error {
	_, err := r.run(ctx, nil, "clean", "-fd")
	return err
}

// MergeFFOnly fast-forwards the current branch to rev, failing if a real
// merge would be needed.
func (r *Repo) MergeFFOnly(ctx context.Context, rev string) error {
	_, err := r.run(ctx, nil, "merge", "--ff-only", rev)
	return err
}

// Merge merges rev into the current branch, fast-forwarding when possible.
func (r *Repo) Merge(ctx context.Context, rev, message string) error {
	_, err := r.run(ctx, nil, "merge", "-m", message, rev)
	return err
}

// CheckoutBranchForce switches to an existing branch, discarding local
// changes that would otherwise block the switch.
func (r *Repo) CheckoutBranchForce(ctx context.Context, name string) error {
	_, err := r.run(ctx, nil, "checkout", "-f", name)
	return err
}
