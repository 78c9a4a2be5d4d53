package merge

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spoolhq/spool/internal/record"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

// fixedNow keeps merge output deterministic in tests.
func fixedNow() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

func baseRecord() *record.Record {
	r := &record.Record{
		ID:        "sp-merge1",
		Title:     "Original title",
		Status:    record.StatusOpen,
		Priority:  2,
		Kind:      record.KindTask,
		Labels:    []string{"a"},
		Version:   1,
		CreatedAt: t0,
		UpdatedAt: t0,
		Body:      "original body",
	}
	r.Normalize()
	return r
}

func TestIdempotence(t *testing.T) {
	x := baseRecord()
	for _, base := range []*record.Record{nil, baseRecord()} {
		res := Records(LocalSide(x.Clone()), RemoteSide(x.Clone()), base, fixedNow)
		if res.Changed {
			t.Error("merge(x, x) reported a change")
		}
		if res.Merged.Version != x.Version {
			t.Errorf("merge(x, x) bumped version to %d", res.Merged.Version)
		}
		if !res.Merged.UpdatedAt.Equal(x.UpdatedAt) {
			t.Error("merge(x, x) bumped updated_at")
		}
		if len(res.Conflicts) != 0 {
			t.Errorf("merge(x, x) produced %d conflicts", len(res.Conflicts))
		}
	}
}

func TestNoOpStability(t *testing.T) {
	// Substantively equal but diverged in version and timestamp: the result
	// must be the higher-versioned input verbatim.
	local := baseRecord()
	remote := baseRecord()
	remote.Version = 4
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), baseRecord(), fixedNow)
	if res.Changed {
		t.Error("no-op merge reported a change")
	}
	if diff := cmp.Diff(remote, res.Merged); diff != "" {
		t.Errorf("no-op merge did not return higher-versioned input (-want +got):\n%s", diff)
	}
}

func TestLWWNewerWins(t *testing.T) {
	local := baseRecord()
	local.Title = "Local edit"
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Title = "Remote edit"
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), baseRecord(), fixedNow)
	if res.Merged.Title != "Remote edit" {
		t.Errorf("Title = %q, want remote's newer edit", res.Merged.Title)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Field != "title" || c.LoserSide != SideLocal || c.Loser != "Local edit" {
		t.Errorf("conflict = %+v, want local title loss", c)
	}
}

func TestOneSideChangedIsNotAConflict(t *testing.T) {
	// Only local touched the title; the remote still matches base. That is a
	// clean pick, not an LWW decision, even though remote's timestamp is
	// newer from unrelated edits.
	base := baseRecord()
	local := baseRecord()
	local.Title = "Local edit"
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Priority = 0
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if res.Merged.Title != "Local edit" {
		t.Errorf("Title = %q, want local's edit preserved", res.Merged.Title)
	}
	if res.Merged.Priority != 0 {
		t.Errorf("Priority = %d, want remote's edit preserved", res.Merged.Priority)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("clean three-way pick produced conflicts: %v", res.Conflicts)
	}
}

func TestCommutativity(t *testing.T) {
	a := baseRecord()
	a.Title = "Edit from a"
	a.Labels = []string{"a", "x"}
	a.UpdatedAt = t1
	a.Version = 2

	b := baseRecord()
	b.Title = "Edit from b"
	b.Labels = []string{"a", "y"}
	b.UpdatedAt = t2
	b.Version = 3

	base := baseRecord()
	ab := Records(LocalSide(a.Clone()), RemoteSide(b.Clone()), base.Clone(), fixedNow)
	ba := Records(LocalSide(b.Clone()), RemoteSide(a.Clone()), base.Clone(), fixedNow)

	if !record.Equivalent(ab.Merged, ba.Merged) {
		t.Errorf("merge not commutative:\nab=%+v\nba=%+v", ab.Merged, ba.Merged)
	}
}

func TestCommutativityOnTimestampTie(t *testing.T) {
	a := baseRecord()
	a.Title = "Zebra"
	a.UpdatedAt = t1

	b := baseRecord()
	b.Title = "Apple"
	b.UpdatedAt = t1

	ab := Records(LocalSide(a.Clone()), RemoteSide(b.Clone()), baseRecord(), fixedNow)
	ba := Records(LocalSide(b.Clone()), RemoteSide(a.Clone()), baseRecord(), fixedNow)

	if ab.Merged.Title != ba.Merged.Title {
		t.Errorf("tie-break not deterministic: %q vs %q", ab.Merged.Title, ba.Merged.Title)
	}
	if ab.Merged.Title != "Apple" {
		t.Errorf("tie-break picked %q, want lexically smaller value", ab.Merged.Title)
	}
}

func TestMonotonicity(t *testing.T) {
	local := baseRecord()
	local.Title = "Local edit"
	local.UpdatedAt = t1
	local.Version = 2

	remote := baseRecord()
	remote.Priority = 0
	remote.UpdatedAt = t2
	remote.Version = 3

	res := Records(LocalSide(local), RemoteSide(remote), baseRecord(), fixedNow)
	if !res.Changed {
		t.Fatal("merge of genuinely diverged inputs reported no change")
	}
	if res.Merged.Version != 4 {
		t.Errorf("Version = %d, want max(2,3)+1 = 4", res.Merged.Version)
	}
	if !res.Merged.UpdatedAt.Equal(fixedNow()) {
		t.Errorf("UpdatedAt = %v, want the merge clock", res.Merged.UpdatedAt)
	}
}

func TestUnionLabels(t *testing.T) {
	base := baseRecord()
	base.Labels = []string{"a"}

	local := baseRecord()
	local.Labels = []string{"a", "b"}
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Labels = []string{"a", "c"}
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if diff := cmp.Diff([]string{"a", "b", "c"}, res.Merged.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}

	// Re-merging the same inputs is stable.
	again := Records(LocalSide(res.Merged.Clone()), RemoteSide(res.Merged.Clone()), base, fixedNow)
	if again.Changed {
		t.Error("re-merge of merged result reported a change")
	}
}

func TestUnionHonorsBaseRelativeDeletion(t *testing.T) {
	base := baseRecord()
	base.Labels = []string{"a", "stale"}

	local := baseRecord()
	local.Labels = []string{"a"} // deleted "stale"
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Labels = []string{"a", "stale", "new"}
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if diff := cmp.Diff([]string{"a", "new"}, res.Merged.Labels); diff != "" {
		t.Errorf("deletion lost (-want +got):\n%s", diff)
	}
}

func TestUnionDeps(t *testing.T) {
	base := baseRecord()
	local := baseRecord()
	local.Deps = []record.Dependency{{On: "sp-x"}}
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Deps = []record.Dependency{{On: "sp-y", Type: "related"}}
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	want := []record.Dependency{{On: "sp-x", Type: "blocks"}, {On: "sp-y", Type: "related"}}
	if diff := cmp.Diff(want, res.Merged.Deps); diff != "" {
		t.Errorf("deps (-want +got):\n%s", diff)
	}
}

func TestManualOrderHints(t *testing.T) {
	local := baseRecord()
	local.ChildOrder = []string{"sp-c", "sp-a"}
	local.UpdatedAt = t2

	remote := baseRecord()
	remote.UpdatedAt = t1

	res := Records(LocalSide(local), RemoteSide(remote), baseRecord(), fixedNow)
	if diff := cmp.Diff([]string{"sp-c", "sp-a"}, res.Merged.ChildOrder); diff != "" {
		t.Errorf("order hints (-want +got):\n%s", diff)
	}

	// The hints then order ids: hinted first in hint order, rest lexical.
	got := record.SortByHint([]string{"sp-a", "sp-b", "sp-c", "sp-d"}, res.Merged.ChildOrder)
	if diff := cmp.Diff([]string{"sp-c", "sp-a", "sp-b", "sp-d"}, got); diff != "" {
		t.Errorf("SortByHint (-want +got):\n%s", diff)
	}
}

func TestExtStructuralMerge(t *testing.T) {
	base := baseRecord()
	base.Ext = map[string]any{"shared": "v0"}

	local := baseRecord()
	local.Ext = map[string]any{"shared": "v0", "mine": "x"}
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Ext = map[string]any{"shared": "v1", "theirs": "y"}
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	want := map[string]any{"shared": "v1", "mine": "x", "theirs": "y"}
	if diff := cmp.Diff(want, res.Merged.Ext); diff != "" {
		t.Errorf("ext (-want +got):\n%s", diff)
	}
}

func TestSyntheticBaseIsNeutral(t *testing.T) {
	// With no common ancestor, neither input may be favored by base
	// construction. The lower-versioned input must not win simply because a
	// biased synthetic base made it look unchanged.
	lower := baseRecord()
	lower.Title = "Lower version, newer edit"
	lower.Version = 1
	lower.UpdatedAt = t2

	higher := baseRecord()
	higher.Title = "Higher version, older edit"
	higher.Version = 5
	higher.UpdatedAt = t1

	res := Records(LocalSide(lower.Clone()), RemoteSide(higher.Clone()), nil, fixedNow)
	if res.Merged.Title != "Lower version, newer edit" {
		t.Errorf("Title = %q; the newer edit must win regardless of version", res.Merged.Title)
	}

	// And symmetrically.
	res2 := Records(LocalSide(higher.Clone()), RemoteSide(lower.Clone()), nil, fixedNow)
	if res2.Merged.Title != "Lower version, newer edit" {
		t.Errorf("swapped sides: Title = %q", res2.Merged.Title)
	}
}

func TestSyntheticBaseKeepsEarliestCreatedAt(t *testing.T) {
	a := baseRecord()
	a.CreatedAt = t0
	b := baseRecord()
	b.CreatedAt = t1

	base := SyntheticBase(a, b)
	if !base.CreatedAt.Equal(t0) {
		t.Errorf("synthetic base CreatedAt = %v, want earliest %v", base.CreatedAt, t0)
	}
	if base.Title != "" || base.Version != 0 {
		t.Error("synthetic base carries content from an input")
	}
}

func TestOneSidedRecordPassesThrough(t *testing.T) {
	only := baseRecord()

	res := Records(LocalSide(only), RemoteSide(nil), nil, fixedNow)
	if res.Changed || !record.Equivalent(res.Merged, only) {
		t.Error("local-only record did not pass through unchanged")
	}

	res = Records(LocalSide(nil), RemoteSide(only), nil, fixedNow)
	if res.Changed || !record.Equivalent(res.Merged, only) {
		t.Error("remote-only record did not pass through unchanged")
	}
}

func TestReopenRacingRecloseStaysValid(t *testing.T) {
	closedAt := t0.Add(30 * time.Minute)
	base := baseRecord()
	base.Status = record.StatusClosed
	base.ClosedAt = &closedAt
	base.CloseReason = "wontfix"

	// Local reopened; remote re-closed later with a fresh stamp.
	local := base.Clone()
	local.Status = record.StatusOpen
	local.ClosedAt = nil
	local.CloseReason = ""
	local.Version = 2
	local.UpdatedAt = t1

	remote := base.Clone()
	reclosedAt := t2
	remote.ClosedAt = &reclosedAt
	remote.Version = 2
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if res.Merged.Status != record.StatusOpen {
		t.Fatalf("Status = %s, want open (only local changed it)", res.Merged.Status)
	}
	if res.Merged.ClosedAt != nil || res.Merged.CloseReason != "" {
		t.Errorf("reopened record kept close stamps: closed_at=%v reason=%q",
			res.Merged.ClosedAt, res.Merged.CloseReason)
	}
	if err := res.Merged.Validate(); err != nil {
		t.Errorf("merged record fails validation: %v", err)
	}
}

func TestCloseStampsFollowStatus(t *testing.T) {
	base := baseRecord()

	closedAt := t1
	local := baseRecord()
	local.Status = record.StatusClosed
	local.ClosedAt = &closedAt
	local.CloseReason = "done"
	local.Version = 2
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Status = record.StatusInProgress
	remote.Version = 2
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if res.Merged.Status != record.StatusInProgress {
		t.Fatalf("Status = %s, want in_progress (remote edit is newer)", res.Merged.Status)
	}
	if res.Merged.ClosedAt != nil || res.Merged.CloseReason != "" {
		t.Errorf("non-closed record kept close stamps: closed_at=%v reason=%q",
			res.Merged.ClosedAt, res.Merged.CloseReason)
	}
	if err := res.Merged.Validate(); err != nil {
		t.Errorf("merged record fails validation: %v", err)
	}
}

func TestClosedStatusAdoptsSurvivingStamp(t *testing.T) {
	closedAt := t0.Add(30 * time.Minute)
	base := baseRecord()
	base.Status = record.StatusClosed
	base.ClosedAt = &closedAt
	base.CloseReason = "done"

	local := base.Clone()

	// A remote side that lost its stamp while staying closed must not strip
	// the merged record's.
	remote := base.Clone()
	remote.ClosedAt = nil
	remote.Version = 2
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), base, fixedNow)
	if res.Merged.Status != record.StatusClosed {
		t.Fatalf("Status = %s, want closed", res.Merged.Status)
	}
	if res.Merged.ClosedAt == nil || !res.Merged.ClosedAt.Equal(closedAt) {
		t.Errorf("ClosedAt = %v, want the surviving stamp %v", res.Merged.ClosedAt, closedAt)
	}
	if err := res.Merged.Validate(); err != nil {
		t.Errorf("merged record fails validation: %v", err)
	}
}

func TestConflictTimestampIsDeterministic(t *testing.T) {
	local := baseRecord()
	local.Title = "Local edit"
	local.UpdatedAt = t1

	remote := baseRecord()
	remote.Title = "Remote edit"
	remote.UpdatedAt = t2

	res := Records(LocalSide(local), RemoteSide(remote), baseRecord(), fixedNow)
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(res.Conflicts))
	}
	if !res.Conflicts[0].Timestamp.Equal(fixedNow()) {
		t.Errorf("conflict timestamp = %v, want the injected clock time %v",
			res.Conflicts[0].Timestamp, fixedNow())
	}
}

func TestMismatchedIDsSurface(t *testing.T) {
	local := baseRecord()
	remote := baseRecord()
	remote.ID = "sp-other"

	res := Records(LocalSide(local), RemoteSide(remote), nil, fixedNow)
	if res.Merged != local {
		t.Error("mismatched ids must keep the local record untouched")
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want one id mismatch entry", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Field != "id" || c.Loser != "sp-other" || c.LoserSide != SideRemote {
		t.Errorf("conflict = %+v, want the remote id reported as loser", c)
	}
}
