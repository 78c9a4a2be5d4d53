// Package merge implements the three-way, field-level merge engine for
// records. Each field carries a declared strategy (last-write-wins, union,
// manual-order, structural); the engine applies them and reports informational
// conflicts for every LWW decision that discarded one side's value.
//
// The engine is pure: it never touches disk. Archiving conflict losers to the
// attic is the caller's job (see internal/syncer and internal/snapshot).
package merge

import (
	"fmt"
	"sort"
	"time"

	"github.com/spoolhq/spool/internal/record"
)

// Side identifies which input a value came from.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Local and Remote are typed wrappers forcing call sites to declare which
// input is which. A caller cannot accidentally hand the same source in as
// both sides without it being visible at the call site.
type Local struct{ Record *record.Record }

type Remote struct{ Record *record.Record }

// LocalSide tags a record as the local input.
func LocalSide(r *record.Record) Local { return Local{Record: r} }

// RemoteSide tags a record as the remote input.
func RemoteSide(r *record.Record) Remote { return Remote{Record: r} }

// Conflict describes one LWW decision that discarded a value. Conflicts are
// informational: the merge still succeeded.
type Conflict struct {
	RecordID  string
	Field     string
	Winner    string
	Loser     string
	LoserSide Side
	Timestamp time.Time
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s.%s: kept %q, archived %q (%s side lost)",
		c.RecordID, c.Field, c.Winner, c.Loser, c.LoserSide)
}

// Result is the outcome of merging one record.
type Result struct {
	Merged    *record.Record
	Conflicts []Conflict

	// Changed is true when Merged differs substantively from the
	// higher-versioned input (and therefore carries a bumped version).
	Changed bool
}

// Clock supplies the timestamp for version bumps. Tests substitute a fixed
// clock; production passes time.Now.
type Clock func() time.Time

// Records merges the local and remote variants of one record against their
// common base. base may be nil when no common ancestor is trackable; a
// synthetic neutral base is constructed in that case (see SyntheticBase).
//
// The invariant that matters most: if the per-field merge reconciles to a
// result substantively equal to the higher-versioned input, that input is
// returned verbatim, with no version bump and no timestamp bump.
func Records(local Local, remote Remote, base *record.Record, now Clock) Result {
	l, r := local.Record, remote.Record
	if l == nil && r == nil {
		return Result{}
	}
	// One-sided records pass through untouched: a record that exists on only
	// one side was created there, never deleted on the other (removal is a
	// status transition, not file deletion).
	if l == nil {
		return Result{Merged: r}
	}
	if r == nil {
		return Result{Merged: l}
	}
	if l.ID != r.ID {
		// Caller bug. Keep local, but surface the mismatch as a conflict
		// instead of hiding it: the typed side wrappers exist precisely so
		// this never passes silently.
		return Result{Merged: l, Conflicts: []Conflict{{
			RecordID:  l.ID,
			Field:     "id",
			Winner:    l.ID,
			Loser:     r.ID,
			LoserSide: SideRemote,
			Timestamp: now().UTC(),
		}}}
	}

	if base == nil {
		base = SyntheticBase(l, r)
	}

	l = normalized(l)
	r = normalized(r)
	base = normalized(base)

	merged := l.Clone()
	var conflicts []Conflict
	lww := newLWW(l, r, base, &conflicts, now)

	merged.Title = lww.str("title", l.Title, r.Title, base.Title)
	merged.Display = lww.str("display", l.Display, r.Display, base.Display)
	merged.Status = record.Status(lww.str("status", string(l.Status), string(r.Status), string(base.Status)))
	merged.Priority = lww.integer("priority", l.Priority, r.Priority, base.Priority)
	merged.Kind = record.Kind(lww.str("kind", string(l.Kind), string(r.Kind), string(base.Kind)))
	merged.Parent = lww.str("parent", l.Parent, r.Parent, base.Parent)
	merged.Tracker = lww.str("tracker", l.Tracker, r.Tracker, base.Tracker)
	merged.Body = lww.str("body", l.Body, r.Body, base.Body)
	merged.CloseReason = lww.str("close_reason", l.CloseReason, r.CloseReason, base.CloseReason)
	merged.DeferUntil = lww.timePtr("defer_until", l.DeferUntil, r.DeferUntil, base.DeferUntil)
	merged.ClosedAt = lww.timePtr("closed_at", l.ClosedAt, r.ClosedAt, base.ClosedAt)

	merged.Labels = unionStrings(l.Labels, r.Labels, base.Labels)
	merged.Deps = unionDeps(l.Deps, r.Deps, base.Deps)
	merged.ChildOrder = lww.strSlice("order", l.ChildOrder, r.ChildOrder, base.ChildOrder)
	merged.Ext = mergeExt("ext", l.Ext, r.Ext, base.Ext, lww)

	// CreatedAt is immutable; keep the earliest of the two in case one side
	// rewrote it.
	merged.CreatedAt = l.CreatedAt
	if r.CreatedAt.Before(l.CreatedAt) {
		merged.CreatedAt = r.CreatedAt
	}

	// Status and the close stamps form one structural unit. Independent
	// field decisions can reopen the status while a close stamp survives
	// from the other side (a reopen racing a re-close), and Validate
	// rejects that shape.
	if merged.Status != record.StatusClosed {
		merged.ClosedAt = nil
		merged.CloseReason = ""
	} else if merged.ClosedAt == nil {
		src := r
		if l.Status == record.StatusClosed && l.ClosedAt != nil {
			src = l
		}
		if src.ClosedAt != nil {
			t := *src.ClosedAt
			merged.ClosedAt = &t
			merged.CloseReason = src.CloseReason
		}
	}

	// No-op detection against the higher-versioned input. A merge that
	// reconciles to an unchanged result returns that input verbatim.
	hv := higherVersioned(local.Record, remote.Record)
	if record.Equivalent(merged, hv) {
		return Result{Merged: hv, Conflicts: conflicts}
	}

	maxVersion := l.Version
	if r.Version > maxVersion {
		maxVersion = r.Version
	}
	merged.Version = maxVersion + 1
	merged.UpdatedAt = now().UTC()
	merged.Normalize()
	return Result{Merged: merged, Conflicts: conflicts, Changed: true}
}

// SyntheticBase constructs a neutral base when no common ancestor can be
// located. The base carries only the stable identifier and the earlier
// created-at; it deliberately favors neither input. Deriving the base from
// the lower-versioned input would make that input always appear "unchanged
// from base" and silently win every field.
func SyntheticBase(l, r *record.Record) *record.Record {
	created := l.CreatedAt
	if r.CreatedAt.Before(created) {
		created = r.CreatedAt
	}
	return &record.Record{ID: l.ID, CreatedAt: created}
}

// higherVersioned picks the reference input for no-op detection. Ties break
// on UpdatedAt, then deterministically on the local side so the choice is
// stable for a given pair of inputs.
func higherVersioned(l, r *record.Record) *record.Record {
	switch {
	case l.Version > r.Version:
		return l
	case r.Version > l.Version:
		return r
	case r.UpdatedAt.After(l.UpdatedAt):
		return r
	default:
		return l
	}
}

func normalized(r *record.Record) *record.Record {
	c := r.Clone()
	c.Normalize()
	return c
}

// lwwMerger applies last-write-wins with three-way awareness: a value changed
// on only one side relative to base is a clean pick, not a conflict. Only
// when both sides changed to different values does LWW decide, recording a
// conflict.
type lwwMerger struct {
	l, r      *record.Record
	conflicts *[]Conflict
	now       Clock
	// remoteWins caches the timestamp comparison so every field in one merge
	// resolves the same direction.
	remoteWins bool
	tied       bool
}

func newLWW(l, r, base *record.Record, conflicts *[]Conflict, now Clock) *lwwMerger {
	m := &lwwMerger{l: l, r: r, conflicts: conflicts, now: now}
	switch {
	case r.UpdatedAt.After(l.UpdatedAt):
		m.remoteWins = true
	case l.UpdatedAt.After(r.UpdatedAt):
		m.remoteWins = false
	default:
		m.tied = true
	}
	return m
}

// pick resolves a both-sides-changed disagreement. On a timestamp tie the
// winner is the lexically smaller rendered value, so merge(a,b) and
// merge(b,a) agree on the same content.
func (m *lwwMerger) pick(field, lv, rv string) (winner string, loserSide Side) {
	remoteWins := m.remoteWins
	if m.tied {
		remoteWins = rv < lv
	}
	if remoteWins {
		m.record(field, rv, lv, SideLocal)
		return rv, SideLocal
	}
	m.record(field, lv, rv, SideRemote)
	return lv, SideRemote
}

func (m *lwwMerger) record(field, winner, loser string, loserSide Side) {
	*m.conflicts = append(*m.conflicts, Conflict{
		RecordID:  m.l.ID,
		Field:     field,
		Winner:    winner,
		Loser:     loser,
		LoserSide: loserSide,
		Timestamp: m.now().UTC(),
	})
}

func (m *lwwMerger) str(field, lv, rv, bv string) string {
	if lv == rv {
		return lv
	}
	if lv == bv {
		return rv // only remote changed
	}
	if rv == bv {
		return lv // only local changed
	}
	w, _ := m.pick(field, lv, rv)
	return w
}

func (m *lwwMerger) integer(field string, lv, rv, bv int) int {
	if lv == rv {
		return lv
	}
	if lv == bv {
		return rv
	}
	if rv == bv {
		return lv
	}
	w, _ := m.pick(field, fmt.Sprintf("%d", lv), fmt.Sprintf("%d", rv))
	if w == fmt.Sprintf("%d", rv) {
		return rv
	}
	return lv
}

func (m *lwwMerger) timePtr(field string, lv, rv, bv *time.Time) *time.Time {
	if timePtrEqual(lv, rv) {
		return lv
	}
	if timePtrEqual(lv, bv) {
		return rv
	}
	if timePtrEqual(rv, bv) {
		return lv
	}
	w, _ := m.pick(field, renderTimePtr(lv), renderTimePtr(rv))
	if w == renderTimePtr(rv) {
		return rv
	}
	return lv
}

func (m *lwwMerger) strSlice(field string, lv, rv, bv []string) []string {
	if strSliceEqual(lv, rv) {
		return lv
	}
	if strSliceEqual(lv, bv) {
		return rv
	}
	if strSliceEqual(rv, bv) {
		return lv
	}
	w, _ := m.pick(field, renderStrSlice(lv), renderStrSlice(rv))
	if w == renderStrSlice(rv) {
		return rv
	}
	return lv
}

// unionStrings computes local ∪ remote minus base-relative deletions: a value
// present in base but absent from one side was deleted there, and the
// deletion is honored rather than resurrected by the other side.
func unionStrings(l, r, base []string) []string {
	inL := toSet(l)
	inR := toSet(r)
	inB := toSet(base)

	out := make([]string, 0, len(l)+len(r))
	seen := make(map[string]bool)
	for _, v := range append(append([]string(nil), l...), r...) {
		if seen[v] {
			continue
		}
		seen[v] = true
		if inB[v] && (!inL[v] || !inR[v]) {
			continue // deleted on at least one side
		}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func unionDeps(l, r, base []record.Dependency) []record.Dependency {
	inL := depSet(l)
	inR := depSet(r)
	inB := depSet(base)

	out := make([]record.Dependency, 0, len(l)+len(r))
	seen := make(map[string]bool)
	for _, d := range append(append([]record.Dependency(nil), l...), r...) {
		k := d.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if inB[k] && (!inL[k] || !inR[k]) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	if len(out) == 0 {
		return nil
	}
	return out
}

// mergeExt merges the opaque extension namespace key-wise: nested maps
// recurse, scalar disagreements fall back to LWW with a dotted field path in
// the conflict entry.
func mergeExt(path string, l, r, base map[string]any, lww *lwwMerger) map[string]any {
	if len(l) == 0 && len(r) == 0 {
		return nil
	}
	out := make(map[string]any)
	keys := make(map[string]bool)
	for k := range l {
		keys[k] = true
	}
	for k := range r {
		keys[k] = true
	}
	for k := range keys {
		lv, lok := l[k]
		rv, rok := r[k]
		bv, bok := base[k]
		field := path + "." + k

		switch {
		case lok && !rok:
			if bok && equalAny(lv, bv) {
				continue // remote deleted an unchanged key
			}
			out[k] = lv
		case rok && !lok:
			if bok && equalAny(rv, bv) {
				continue // local deleted an unchanged key
			}
			out[k] = rv
		case equalAny(lv, rv):
			out[k] = lv
		default:
			lm, lIsMap := lv.(map[string]any)
			rm, rIsMap := rv.(map[string]any)
			if lIsMap && rIsMap {
				bm, _ := bv.(map[string]any)
				if nested := mergeExt(field, lm, rm, bm, lww); nested != nil {
					out[k] = nested
				}
				continue
			}
			if bok && equalAny(lv, bv) {
				out[k] = rv
				continue
			}
			if bok && equalAny(rv, bv) {
				out[k] = lv
				continue
			}
			w, _ := lww.pick(field, renderAny(lv), renderAny(rv))
			if w == renderAny(rv) {
				out[k] = rv
			} else {
				out[k] = lv
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
