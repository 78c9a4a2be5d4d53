// Package record defines the core data model for spool: a single
// issue-tracking record, serialized as one markdown file with YAML front
// matter. The record is the unit of merge and sync.
package record

import (
	"crypto/sha256"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Status is the workflow state of a record.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
)

// IsValid returns true for one of the five built-in statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusDeferred, StatusClosed:
		return true
	}
	return false
}

// Kind categorizes a record.
type Kind string

const (
	KindTask    Kind = "task"
	KindBug     Kind = "bug"
	KindFeature Kind = "feature"
	KindEpic    Kind = "epic"
	KindChore   Kind = "chore"
)

// IsValid returns true for one of the built-in kinds (empty defaults to task).
func (k Kind) IsValid() bool {
	switch k {
	case "", KindTask, KindBug, KindFeature, KindEpic, KindChore:
		return true
	}
	return false
}

// Dependency is a directed edge from this record to another.
type Dependency struct {
	On   string `yaml:"on" json:"on"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"` // blocks (default), related, discovered-from
}

// Key returns the identity of the edge for set semantics.
func (d Dependency) Key() string {
	typ := d.Type
	if typ == "" {
		typ = "blocks"
	}
	return d.On + "\x00" + typ
}

// Record represents a trackable work item.
//
// ID is the stable identifier and is permanent. Display is a short
// human-facing identifier that may be remapped but is never reused for a
// different record. Version and UpdatedAt are merge bookkeeping: Version
// increases only when a merge produces a substantively different record
// (see Equivalent).
type Record struct {
	// Identity
	ID      string `yaml:"id"`
	Display string `yaml:"display,omitempty"`

	// Content
	Title string `yaml:"title"`

	// Workflow
	Status   Status `yaml:"status,omitempty"`
	Priority int    `yaml:"priority"` // 0 is valid (most urgent), so no omitempty
	Kind     Kind   `yaml:"kind,omitempty"`

	// Organization
	Labels     []string     `yaml:"labels,omitempty"`
	Parent     string       `yaml:"parent,omitempty"`
	Deps       []Dependency `yaml:"deps,omitempty"`
	ChildOrder []string     `yaml:"order,omitempty"` // manual child ordering hints

	// External tracker link, e.g. "gh-42". Empty when unlinked.
	Tracker string `yaml:"tracker,omitempty"`

	// Ext is an opaque extension namespace for tooling-specific data.
	Ext map[string]any `yaml:"ext,omitempty"`

	// Scheduling
	DeferUntil *time.Time `yaml:"defer_until,omitempty"`

	// Close bookkeeping
	ClosedAt    *time.Time `yaml:"closed_at,omitempty"`
	CloseReason string     `yaml:"close_reason,omitempty"`

	// Merge bookkeeping
	Version   int       `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`

	// Body is the free-text description, stored after the front matter.
	Body string `yaml:"-"`
}

// Validate checks field values before a record is written to the store.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(r.Title))
	}
	if r.Priority < 0 || r.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", r.Priority)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", r.Kind)
	}
	if r.Status == StatusClosed && r.ClosedAt == nil {
		return fmt.Errorf("closed records must have closed_at timestamp")
	}
	if r.Status != StatusClosed && r.ClosedAt != nil {
		return fmt.Errorf("non-closed records cannot have closed_at timestamp")
	}
	return nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.Labels != nil {
		c.Labels = append([]string(nil), r.Labels...)
	}
	if r.Deps != nil {
		c.Deps = append([]Dependency(nil), r.Deps...)
	}
	if r.ChildOrder != nil {
		c.ChildOrder = append([]string(nil), r.ChildOrder...)
	}
	if r.Ext != nil {
		c.Ext = cloneMap(r.Ext)
	}
	if r.DeferUntil != nil {
		t := *r.DeferUntil
		c.DeferUntil = &t
	}
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Normalize canonicalizes set-like fields in place: labels are sorted and
// deduplicated, dependency edges are sorted by key with the default type made
// explicit, and empty collections collapse to nil so that "absent" and
// "empty" compare equal.
func (r *Record) Normalize() {
	if len(r.Labels) > 0 {
		seen := make(map[string]bool, len(r.Labels))
		out := r.Labels[:0]
		for _, l := range r.Labels {
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
		sort.Strings(out)
		r.Labels = out
	}
	if len(r.Labels) == 0 {
		r.Labels = nil
	}
	if len(r.Deps) > 0 {
		seen := make(map[string]bool, len(r.Deps))
		out := r.Deps[:0]
		for _, d := range r.Deps {
			if d.On == "" || seen[d.Key()] {
				continue
			}
			if d.Type == "" {
				d.Type = "blocks"
			}
			seen[d.Key()] = true
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
		r.Deps = out
	}
	if len(r.Deps) == 0 {
		r.Deps = nil
	}
	if len(r.ChildOrder) == 0 {
		r.ChildOrder = nil
	}
	if len(r.Ext) == 0 {
		r.Ext = nil
	}
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if r.Kind == "" {
		r.Kind = KindTask
	}
	r.Body = strings.TrimRight(r.Body, "\n")
}

// Equivalent reports substantive equality: all fields except Version and
// UpdatedAt. Both sides are normalized before comparison so nil and absent
// collections compare equal.
func Equivalent(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	ca, cb := a.Clone(), b.Clone()
	ca.Normalize()
	cb.Normalize()
	ca.Version, cb.Version = 0, 0
	ca.UpdatedAt, cb.UpdatedAt = time.Time{}, time.Time{}
	// Canonicalize timestamps to UTC so wall-clock representation differences
	// do not defeat equality.
	ca.CreatedAt = ca.CreatedAt.UTC()
	cb.CreatedAt = cb.CreatedAt.UTC()
	normalizeTimePtr(&ca.DeferUntil)
	normalizeTimePtr(&cb.DeferUntil)
	normalizeTimePtr(&ca.ClosedAt)
	normalizeTimePtr(&cb.ClosedAt)
	return reflect.DeepEqual(ca, cb)
}

func normalizeTimePtr(p **time.Time) {
	if *p != nil {
		t := (*p).UTC()
		*p = &t
	}
}

// ContentHash returns the SHA-256 of the serialized record bytes. This is a
// cheap change-detection signal for callers comparing file states; it is NOT
// substantive equality (a version-only change alters the hash).
func (r *Record) ContentHash() (string, error) {
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// SortByHint orders ids so that every id present in hints sorts before every
// id absent from hints, in hint order. Ids absent from hints keep a stable
// lexical order. Hint entries that reference unknown ids are inert.
func SortByHint(ids []string, hints []string) []string {
	pos := make(map[string]int, len(hints))
	for i, h := range hints {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, iok := pos[out[i]]
		pj, jok := pos[out[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}
