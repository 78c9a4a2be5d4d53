package worktree

import (
	"context"
	"fmt"
	"strings"

	"github.com/spoolhq/spool/internal/vcs/git"
)

// ActiveTxn returns the name of the transaction the worktree is currently
// inside, or "" when it sits on the record branch. The worktree's current
// branch is the only transaction state; there is no side file to drift out
// of date.
func (m *Manager) ActiveTxn(ctx context.Context, wt *git.Repo) (string, error) {
	ref, err := wt.CurrentRef(ctx)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(ref, TxnPrefix) {
		return strings.TrimPrefix(ref, TxnPrefix), nil
	}
	return "", nil
}

// Begin starts a transaction: a branch off the record-branch tip, checked
// out in the same worktree. Only one transaction may be active at a time.
func (m *Manager) Begin(ctx context.Context, wt *git.Repo, name string) error {
	if name == "" || strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("invalid transaction name %q", name)
	}
	active, err := m.ActiveTxn(ctx, wt)
	if err != nil {
		return err
	}
	if active != "" {
		return fmt.Errorf("transaction %q is already active; commit or abort it first", active)
	}
	dirty, err := wt.HasChanges(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("worktree has uncommitted changes; commit them before beginning a transaction")
	}
	txnBranch := TxnPrefix + name
	if err := wt.CreateBranch(ctx, txnBranch, m.branch); err != nil {
		return err
	}
	return wt.CheckoutBranch(ctx, txnBranch)
}

// CommitTxn commits any pending changes, merges the transaction branch back
// into the record branch, and deletes it.
func (m *Manager) CommitTxn(ctx context.Context, wt *git.Repo, message string) error {
	active, err := m.ActiveTxn(ctx, wt)
	if err != nil {
		return err
	}
	if active == "" {
		return fmt.Errorf("no active transaction")
	}
	txnBranch := TxnPrefix + active

	if message == "" {
		message = fmt.Sprintf("spool: commit transaction %s", active)
	}
	if _, err := m.Commit(ctx, wt, message); err != nil {
		return fmt.Errorf("commit transaction changes: %w", err)
	}
	if err := wt.CheckoutBranch(ctx, m.branch); err != nil {
		return err
	}
	if err := wt.Merge(ctx, txnBranch, fmt.Sprintf("spool: merge transaction %s", active)); err != nil {
		// Leave the transaction branch intact for inspection.
		return fmt.Errorf("merge transaction %s: %w", active, err)
	}
	return wt.DeleteBranch(ctx, txnBranch, false)
}

// Abort discards the transaction: the worktree switches back to the record
// branch and the transaction branch is force-deleted with all its commits.
func (m *Manager) Abort(ctx context.Context, wt *git.Repo) error {
	active, err := m.ActiveTxn(ctx, wt)
	if err != nil {
		return err
	}
	if active == "" {
		return fmt.Errorf("no active transaction")
	}
	txnBranch := TxnPrefix + active

	if err := wt.CheckoutBranchForce(ctx, m.branch); err != nil {
		return err
	}
	// Stray files from the aborted transaction must not leak into the
	// record branch.
	if err := wt.ResetHard(ctx, m.branch); err != nil {
		return err
	}
	if err := wt.Clean(ctx); err != nil {
		return err
	}
	return wt.DeleteBranch(ctx, txnBranch, true)
}
