// Package syncer sequences record synchronization: pulling external tracker
// state, reconciling the record branch with the remote through a bounded
// push-retry loop, and pushing local state back out to the tracker.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spoolhq/spool/internal/debug"
	"github.com/spoolhq/spool/internal/merge"
	"github.com/spoolhq/spool/internal/store"
	"github.com/spoolhq/spool/internal/syncstate"
	"github.com/spoolhq/spool/internal/tracker"
	"github.com/spoolhq/spool/internal/vcs/git"
	"github.com/spoolhq/spool/internal/worktree"
)

// Engine runs sync operations against one repository's record branch.
type Engine struct {
	Manager *worktree.Manager
	WT      *git.Repo // record-branch worktree, from Manager.Init
	Store   *store.Store
	State   *syncstate.DB

	Tracker    tracker.Tracker
	Capability tracker.Capability

	// MetadataSync is an optional secondary sync hook (documentation cache
	// and the like), run best-effort between tracker pull and the push loop.
	MetadataSync func(ctx context.Context) error

	MaxRetries int
	Now        merge.Clock
}

// Summary tallies what one sync did. Zero-valued categories are omitted from
// the rendered form.
type Summary struct {
	PulledNew     int // records that arrived from the remote
	PulledUpdated int // records updated from the remote side
	PushedNew     int // records the remote had never seen
	PushedUpdated int // records updated toward the remote

	TrackerPulled int // records updated from the external tracker
	TrackerPushed int // records mirrored out to the external tracker

	Conflicts int // LWW decisions; losers are in the attic
	Skipped   int // unreadable record files, reported but not fatal

	Committed string // record-branch commit hash, "" when nothing committed
	Pushed    bool

	// Warnings carry non-fatal observations, e.g. a mass-deletion check.
	Warnings []string

	// PhaseErrors collects per-phase failures; later phases still ran.
	PhaseErrors []error
}

// Render produces the user-facing one-or-few-line summary.
func (s *Summary) Render() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.PulledNew, "pulled")
	add(s.PulledUpdated, "updated from remote")
	add(s.PushedNew, "pushed new")
	add(s.PushedUpdated, "pushed updated")
	add(s.TrackerPulled, "updated from tracker")
	add(s.TrackerPushed, "mirrored to tracker")
	add(s.Conflicts, "conflicts (see attic)")
	add(s.Skipped, "unreadable records skipped")
	if len(parts) == 0 {
		return "nothing changed"
	}
	return strings.Join(parts, ", ")
}

// Failed reports whether any phase failed.
func (s *Summary) Failed() bool { return len(s.PhaseErrors) > 0 }

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) maxRetries() int {
	if e.MaxRetries > 0 {
		return e.MaxRetries
	}
	return 5
}

// Sync runs the full phase sequence:
//
//  1. pull external tracker state into local records
//  2. secondary metadata sync
//  3. push-retry reconciliation of the record branch
//  4. push local record state out to the tracker
//
// The order is load-bearing. Tracker pull runs before the record-branch
// commit so the committed snapshot reflects everything known; tracker push
// runs after, so the record branch stays authoritative if the tracker push
// fails and is simply retried next sync. A failed phase does not stop later
// phases, but the summary reports failure.
func (e *Engine) Sync(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	if e.Capability.Available && e.Tracker != nil {
		if err := e.pullTracker(ctx, sum); err != nil {
			sum.PhaseErrors = append(sum.PhaseErrors, fmt.Errorf("tracker pull: %w", err))
			debug.Logf("tracker pull failed: %v", err)
		}
	}

	if e.MetadataSync != nil {
		if err := e.MetadataSync(ctx); err != nil {
			sum.PhaseErrors = append(sum.PhaseErrors, fmt.Errorf("metadata sync: %w", err))
			debug.Logf("metadata sync failed: %v", err)
		}
	}

	if err := e.PushWithRetry(ctx, sum); err != nil {
		sum.PhaseErrors = append(sum.PhaseErrors, fmt.Errorf("push: %w", err))
		debug.Logf("push failed: %v", err)
	}

	if e.Capability.Available && e.Tracker != nil {
		if err := e.pushTracker(ctx, sum); err != nil {
			sum.PhaseErrors = append(sum.PhaseErrors, fmt.Errorf("tracker push: %w", err))
			debug.Logf("tracker push failed: %v", err)
		}
	}

	if sum.Failed() {
		return sum, errors.Join(sum.PhaseErrors...)
	}
	return sum, nil
}
