package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spoolhq/spool/internal/debug"
	"github.com/spoolhq/spool/internal/merge"
	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/store"
	"github.com/spoolhq/spool/internal/vcs"
)

// Mass-deletion guard: when this share of the previously known record set is
// absent on the remote (and at least massDeleteFloor records existed), the
// sync surfaces a warning instead of silently reinstating them.
const (
	massDeleteFraction = 0.5
	massDeleteFloor    = 5
)

// PushWithRetry reconciles the record branch with the remote and pushes.
//
// Each attempt: commit pending local changes, fetch, merge the remote's
// records in (per record, three-way), commit the merge, push. A push
// rejected because the remote advanced again restarts the loop; transient
// failures back off and retry; permanent failures stop immediately.
func (e *Engine) PushWithRetry(ctx context.Context, sum *Summary) error {
	branch := e.Manager.Branch()
	remote := e.Manager.Remote()

	// A sync while the worktree sits on a transaction branch would commit
	// and reset the wrong branch, then push a stale record-branch ref.
	txn, err := e.Manager.ActiveTxn(ctx, e.WT)
	if err != nil {
		return err
	}
	if txn != "" {
		return fmt.Errorf("transaction %q is active; commit or abort it before syncing", txn)
	}

	commit, err := e.Manager.Commit(ctx, e.WT, "spool: sync "+e.now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	if commit != "" {
		sum.Committed = commit
	}

	if remote == "" || !e.WT.HasRemote(ctx, remote) {
		debug.Logf("no remote %q configured, local-only sync", remote)
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			debug.Logf("push attempt %d after %v backoff", attempt+1, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := e.WT.Fetch(ctx, remote, branch); err != nil {
			lastErr = err
			continue
		}

		if e.WT.RemoteBranchExists(ctx, remote, branch) {
			merged, err := e.reconcile(ctx, remote+"/"+branch, sum)
			if err != nil {
				return err
			}
			if merged != "" {
				sum.Committed = merged
			}
		}

		err := e.WT.Push(ctx, remote, branch)
		if err == nil {
			head, rerr := e.WT.ResolveRevision(ctx, "HEAD")
			if rerr == nil {
				if serr := e.State.SetLastSyncedCommit(remote, branch, head); serr != nil {
					debug.Logf("record synced commit: %v", serr)
				}
			}
			sum.Pushed = true
			return nil
		}

		switch vcs.ClassOf(err) {
		case vcs.ClassPermanent:
			return fmt.Errorf("push rejected permanently: %w", err)
		case vcs.ClassStale:
			debug.Logf("remote advanced during push, re-merging")
			lastErr = err
		default:
			lastErr = err
		}
	}
	return fmt.Errorf("push did not succeed after %d attempts: %w", e.maxRetries(), lastErr)
}

// reconcile merges the remote revision's records into the local set and
// commits the result on top of the remote tip, so the subsequent push is a
// fast forward. Returns the merge commit hash, "" when local and remote
// already agreed.
func (e *Engine) reconcile(ctx context.Context, remoteRev string, sum *Summary) (string, error) {
	remoteHash, err := e.WT.ResolveRevision(ctx, remoteRev)
	if err != nil {
		return "", err
	}
	ahead, behind, err := e.WT.RevListCounts(ctx, "HEAD", remoteHash)
	if err != nil {
		return "", err
	}
	if behind == 0 {
		// Remote is an ancestor; nothing to merge.
		return "", nil
	}
	if ahead == 0 {
		// Pure fast-forward: adopt the remote state, then count what changed.
		if err := e.countPull(ctx, remoteHash, sum); err != nil {
			return "", err
		}
		if err := e.WT.MergeFFOnly(ctx, remoteHash); err != nil {
			return "", err
		}
		return "", nil
	}

	baseRev, err := e.WT.MergeBase(ctx, "HEAD", remoteHash)
	if err != nil {
		return "", err
	}

	ids, err := e.unionIDs(ctx, remoteHash)
	if err != nil {
		return "", err
	}

	type outcome struct {
		rec       *record.Record
		losers    []*record.Record
		conflicts []merge.Conflict
	}
	merged := make(map[string]outcome, len(ids))
	vanished := 0
	known := 0

	for _, id := range ids {
		local, err := e.loadLocal(id)
		if err != nil {
			var le store.LoadError
			if errors.As(err, &le) {
				sum.Skipped++
				debug.Logf("skipping unreadable record: %v", le)
				continue
			}
			return "", err
		}
		remote, err := e.readAt(ctx, remoteHash, id)
		if err != nil {
			return "", err
		}
		var base *record.Record
		if baseRev != "" {
			base, err = e.readAt(ctx, baseRev, id)
			if err != nil {
				return "", err
			}
		}

		if base != nil {
			known++
			if local != nil && remote == nil {
				vanished++
			}
		}

		res := merge.Records(merge.LocalSide(local), merge.RemoteSide(remote), base, e.now)
		if res.Merged == nil {
			continue
		}
		out := outcome{rec: res.Merged, conflicts: res.Conflicts}
		// One LWW decision per side at most: several conflicting fields on
		// the same record still lose the same snapshot once.
		lost := make(map[merge.Side]bool, 2)
		for _, c := range res.Conflicts {
			if lost[c.LoserSide] {
				continue
			}
			lost[c.LoserSide] = true
			loser := local
			if c.LoserSide == merge.SideRemote {
				loser = remote
			}
			if loser != nil {
				out.losers = append(out.losers, loser)
			}
		}
		merged[id] = out
		e.tally(local, remote, res.Merged, sum)
	}

	if known >= massDeleteFloor && float64(vanished) > massDeleteFraction*float64(known) {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf(
			"remote is missing %d of %d previously synced records; keeping local copies (they will be pushed back)",
			vanished, known))
	}

	// Every merged record must be writable before any local commit is
	// abandoned: a Put failure after the reset would strand the branch on
	// the remote tip with the local-only content gone from the worktree.
	for id, out := range merged {
		if err := out.rec.Validate(); err != nil {
			return "", fmt.Errorf("merge produced invalid record %s: %w", id, err)
		}
	}

	// Rebuild on top of the remote tip so the push fast-forwards. Local
	// commits are abandoned; their content survives in the merged set.
	if err := e.WT.ResetHard(ctx, remoteHash); err != nil {
		return "", err
	}
	for id, out := range merged {
		if err := e.Store.Put(out.rec); err != nil {
			return "", fmt.Errorf("write merged %s: %w", id, err)
		}
		for _, loser := range out.losers {
			if _, err := e.Store.Attic().Archive(loser, e.now()); err != nil {
				return "", err
			}
		}
		sum.Conflicts += len(out.conflicts)
	}

	return e.Manager.Commit(ctx, e.WT, "spool: merge remote "+remoteHash[:12])
}

// countPull tallies what a fast-forward will change, before it happens.
func (e *Engine) countPull(ctx context.Context, remoteHash string, sum *Summary) error {
	ids, err := e.unionIDs(ctx, remoteHash)
	if err != nil {
		return err
	}
	for _, id := range ids {
		local, err := e.loadLocal(id)
		if err != nil {
			continue
		}
		remote, err := e.readAt(ctx, remoteHash, id)
		if err != nil || remote == nil {
			continue
		}
		switch {
		case local == nil:
			sum.PulledNew++
		case !record.Equivalent(local, remote):
			sum.PulledUpdated++
		}
	}
	return nil
}

func (e *Engine) tally(local, remote, merged *record.Record, sum *Summary) {
	switch {
	case local == nil && remote != nil:
		sum.PulledNew++
	case remote == nil && local != nil:
		sum.PushedNew++
	case local != nil && remote != nil:
		if !record.Equivalent(merged, local) {
			sum.PulledUpdated++
		}
		if !record.Equivalent(merged, remote) {
			sum.PushedUpdated++
		}
	}
}

// unionIDs returns the union of local and remote record ids. Iterating only
// local ids would silently drop records that exist only on the remote.
func (e *Engine) unionIDs(ctx context.Context, remoteRev string) ([]string, error) {
	localIDs, err := e.Store.IDs()
	if err != nil {
		return nil, err
	}
	paths, err := e.WT.ListAtRevision(ctx, remoteRev, store.RecordsDir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(localIDs)+len(paths))
	var ids []string
	for _, id := range localIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, p := range paths {
		name := p[strings.LastIndex(p, "/")+1:]
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (e *Engine) loadLocal(id string) (*record.Record, error) {
	rec, err := e.Store.Get(id)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return rec, err
}

// readAt reads a record's content at a revision. This is the only legitimate
// source for the remote side of a merge; reading the local file under the
// same name would silently discard genuine remote edits.
func (e *Engine) readAt(ctx context.Context, rev, id string) (*record.Record, error) {
	data, err := e.WT.ReadAtRevision(ctx, rev, store.RelPath(id))
	if errors.Is(err, vcs.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := record.Unmarshal(data)
	if err != nil {
		debug.Logf("unreadable record %s at %s: %v", id, rev, err)
		return nil, nil
	}
	return rec, nil
}
