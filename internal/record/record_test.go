package record

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testRecord() *Record {
	return &Record{
		ID:        "sp-a1b2c3",
		Display:   "sp-a1b2c3",
		Title:     "Fix the flaky login test",
		Status:    StatusOpen,
		Priority:  2,
		Kind:      KindBug,
		Labels:    []string{"ci", "auth"},
		Version:   1,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Body:      "Fails roughly one run in five.",
	}
}

func TestRoundtrip(t *testing.T) {
	rec := testRecord()
	rec.Deps = []Dependency{{On: "sp-parent"}, {On: "sp-other", Type: "related"}}
	rec.Ext = map[string]any{"estimate": "3d"}
	rec.Normalize()

	data, err := Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	got.Normalize()
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no front matter", "just a body\n"},
		{"unterminated fence", "---\nid: x\ntitle: t\n"},
		{"missing id", "---\ntitle: t\n---\nbody\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tc.data)); err == nil {
				t.Errorf("Unmarshal(%q) succeeded, want error", tc.data)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	rec := testRecord()
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate() on good record failed: %v", err)
	}

	long := testRecord()
	long.Title = strings.Repeat("x", 501)
	if err := long.Validate(); err == nil {
		t.Error("Validate() accepted a 501-char title")
	}

	pri := testRecord()
	pri.Priority = 5
	if err := pri.Validate(); err == nil {
		t.Error("Validate() accepted priority 5")
	}

	closed := testRecord()
	closed.Status = StatusClosed
	if err := closed.Validate(); err == nil {
		t.Error("Validate() accepted closed record without closed_at")
	}
	now := time.Now()
	closed.ClosedAt = &now
	if err := closed.Validate(); err != nil {
		t.Errorf("Validate() on closed record with closed_at failed: %v", err)
	}
}

func TestEquivalentIgnoresVersionAndUpdatedAt(t *testing.T) {
	a := testRecord()
	b := testRecord()
	b.Version = 7
	b.UpdatedAt = b.UpdatedAt.Add(time.Hour)
	if !Equivalent(a, b) {
		t.Error("Equivalent() = false for records differing only in version and updated_at")
	}

	b.Title = "Different"
	if Equivalent(a, b) {
		t.Error("Equivalent() = true for records with different titles")
	}
}

func TestEquivalentNormalizesAbsentCollections(t *testing.T) {
	a := testRecord()
	a.Labels = nil
	b := testRecord()
	b.Labels = []string{}
	if !Equivalent(a, b) {
		t.Error("Equivalent() treats nil and empty label sets differently")
	}
}

func TestEquivalentNormalizesTimezones(t *testing.T) {
	a := testRecord()
	b := testRecord()
	loc := time.FixedZone("UTC+2", 2*3600)
	b.CreatedAt = b.CreatedAt.In(loc)
	if !Equivalent(a, b) {
		t.Error("Equivalent() is sensitive to timestamp location")
	}
}

func TestNormalizeDedupesAndSorts(t *testing.T) {
	rec := testRecord()
	rec.Labels = []string{"b", "a", "b", ""}
	rec.Deps = []Dependency{{On: "x"}, {On: "x", Type: "blocks"}, {On: "a", Type: "related"}}
	rec.Normalize()

	if diff := cmp.Diff([]string{"a", "b"}, rec.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	want := []Dependency{{On: "a", Type: "related"}, {On: "x", Type: "blocks"}}
	if diff := cmp.Diff(want, rec.Deps); diff != "" {
		t.Errorf("deps (-want +got):\n%s", diff)
	}
}

func TestContentHashChangesWithContent(t *testing.T) {
	a := testRecord()
	h1, err := a.ContentHash()
	if err != nil {
		t.Fatalf("ContentHash() failed: %v", err)
	}
	a.Title = "Changed"
	h2, err := a.ContentHash()
	if err != nil {
		t.Fatalf("ContentHash() failed: %v", err)
	}
	if h1 == h2 {
		t.Error("ContentHash() unchanged after title edit")
	}
}

func TestSortByHint(t *testing.T) {
	ids := []string{"d", "b", "a", "c"}
	hints := []string{"c", "a", "ghost"}

	got := SortByHint(ids, hints)
	want := []string{"c", "a", "b", "d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortByHint (-want +got):\n%s", diff)
	}

	// Stale hint entries are inert and unhinted ids stay lexical.
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, SortByHint(ids, nil)); diff != "" {
		t.Errorf("SortByHint with no hints (-want +got):\n%s", diff)
	}
}
