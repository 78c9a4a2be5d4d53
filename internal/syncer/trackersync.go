package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spoolhq/spool/internal/debug"
	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/syncstate"
	"github.com/spoolhq/spool/internal/tracker"
)

func joinLabels(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func labelSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}

// pullTracker updates local records from their linked tracker issues. Label
// sync is a union relative to the last synced state: labels added externally
// appear locally, labels removed externally disappear locally, and local
// edits since the last sync are untouched (they flow out in pushTracker).
func (e *Engine) pullTracker(ctx context.Context, sum *Summary) error {
	recs, bad, err := e.Store.List()
	if err != nil {
		return err
	}
	sum.Skipped += len(bad)
	for _, le := range bad {
		debug.Logf("tracker pull skipping unreadable record: %v", le)
	}

	var firstErr error
	for _, rec := range recs {
		if rec.Tracker == "" {
			continue
		}
		if err := e.pullOne(ctx, rec, sum); err != nil {
			debug.Logf("tracker pull %s (%s): %v", rec.ID, rec.Tracker, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", rec.ID, err)
			}
		}
	}
	return firstErr
}

func (e *Engine) pullOne(ctx context.Context, rec *record.Record, sum *Summary) error {
	ext, err := e.Tracker.GetState(ctx, rec.Tracker)
	if err != nil {
		return err
	}
	last, err := e.State.TrackerStateFor(rec.ID)
	if err != nil {
		return err
	}

	changed := false

	if status, ok := tracker.PullMapping(ext.State, ext.Reason); ok {
		// Only adopt the external status when the tracker actually moved
		// since the last sync; otherwise a staged local transition would be
		// clobbered before it ever reached the tracker. Two more cases never
		// adopt: a local status with no external analogue (blocked,
		// deferred), and a local status that already mirrors the observed
		// external state (in_progress maps to open, so an open issue tells
		// us nothing on the first pull after linking).
		pushState, _, mapped := tracker.PushMapping(rec.Status)
		externallyMoved := last == nil || last.State != ext.State
		if mapped && !strings.EqualFold(pushState, ext.State) && externallyMoved && status != rec.Status {
			rec.Status = status
			if status == record.StatusClosed {
				now := e.now().UTC()
				rec.ClosedAt = &now
			} else {
				rec.ClosedAt = nil
				rec.CloseReason = ""
			}
			changed = true
		}
	}

	var lastLabels []string
	if last != nil {
		lastLabels = splitLabels(last.Labels)
	}
	extSet := labelSet(ext.Labels)
	lastSet := labelSet(lastLabels)
	localSet := labelSet(rec.Labels)

	for l := range extSet {
		if !lastSet[l] && !localSet[l] {
			rec.Labels = append(rec.Labels, l)
			changed = true
		}
	}
	for l := range lastSet {
		if !extSet[l] && localSet[l] {
			rec.Labels = removeLabel(rec.Labels, l)
			changed = true
		}
	}

	if changed {
		rec.UpdatedAt = e.now().UTC()
		rec.Version++
		rec.Normalize()
		if err := e.Store.Put(rec); err != nil {
			return err
		}
		sum.TrackerPulled++
	}
	return nil
}

func removeLabel(labels []string, target string) []string {
	out := labels[:0]
	for _, l := range labels {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

// pushTracker mirrors local status and labels out to linked tracker issues.
// Unmapped local statuses (blocked, deferred) produce no external change.
func (e *Engine) pushTracker(ctx context.Context, sum *Summary) error {
	recs, _, err := e.Store.List()
	if err != nil {
		return err
	}

	var firstErr error
	for _, rec := range recs {
		if rec.Tracker == "" {
			continue
		}
		if err := e.pushOne(ctx, rec, sum); err != nil {
			debug.Logf("tracker push %s (%s): %v", rec.ID, rec.Tracker, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", rec.ID, err)
			}
		}
	}
	return firstErr
}

func (e *Engine) pushOne(ctx context.Context, rec *record.Record, sum *Summary) error {
	last, err := e.State.TrackerStateFor(rec.ID)
	if err != nil {
		return err
	}

	var lastLabels []string
	lastState := ""
	if last != nil {
		lastLabels = splitLabels(last.Labels)
		lastState = last.State
	}

	mirrored := false

	if state, reason, ok := tracker.PushMapping(rec.Status); ok && state != lastState {
		if err := e.Tracker.SetState(ctx, rec.Tracker, state, reason); err != nil {
			return err
		}
		lastState = state
		mirrored = true
	}

	lastSet := labelSet(lastLabels)
	localSet := labelSet(rec.Labels)
	for _, l := range rec.Labels {
		if !lastSet[l] {
			if err := e.Tracker.EnsureLabel(ctx, l); err != nil {
				return err
			}
			if err := e.Tracker.AddLabel(ctx, rec.Tracker, l); err != nil {
				return err
			}
			mirrored = true
		}
	}
	for _, l := range lastLabels {
		if !localSet[l] {
			if err := e.Tracker.RemoveLabel(ctx, rec.Tracker, l); err != nil {
				return err
			}
			mirrored = true
		}
	}

	if mirrored {
		sum.TrackerPushed++
	}
	// Record the synced view even when nothing moved, so the first sync
	// establishes a baseline for future diffs.
	return e.State.SetTrackerState(syncstate.TrackerState{
		RecordID: rec.ID,
		Ref:      rec.Tracker,
		State:    lastState,
		Labels:   joinLabels(rec.Labels),
		SyncedAt: time.Now().UTC(),
	})
}
