// Package attic implements the append-only archive of conflict-losing record
// snapshots. Every LWW merge decision that discards one side's record writes
// the full losing snapshot here before it disappears from the store, keyed by
// (record id, archival timestamp). Entries are never auto-deleted.
package attic

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spoolhq/spool/internal/record"
)

// Attic is a conflict archive rooted at one directory. The main store has
// one; each named snapshot carries its own, so staging conflicts never depend
// on the main store being reachable.
type Attic struct {
	dir string
}

// Entry identifies one archived snapshot.
type Entry struct {
	RecordID   string
	ArchivedAt time.Time
	Path       string
}

// timestampLayout orders lexically the same as chronologically, so directory
// listings come back in archival order without parsing.
const timestampLayout = "20060102T150405.000000000Z"

// New returns an attic rooted at dir. The directory is created lazily on
// first archive.
func New(dir string) *Attic {
	return &Attic{dir: dir}
}

// Dir returns the attic root.
func (a *Attic) Dir() string { return a.dir }

// Archive writes the losing record snapshot under <dir>/<id>/<timestamp>.md.
// Existing entries are never overwritten: if the timestamp collides, the
// nanosecond is advanced until a free slot is found.
func (a *Attic) Archive(rec *record.Record, when time.Time) (Entry, error) {
	if rec == nil || rec.ID == "" {
		return Entry{}, fmt.Errorf("attic: cannot archive record without id")
	}
	data, err := record.Marshal(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("attic: serialize %s: %w", rec.ID, err)
	}

	recDir := filepath.Join(a.dir, rec.ID)
	if err := os.MkdirAll(recDir, 0o750); err != nil {
		return Entry{}, fmt.Errorf("attic: create %s: %w", recDir, err)
	}

	when = when.UTC()
	for {
		name := when.Format(timestampLayout) + ".md"
		path := filepath.Join(recDir, name)
		if _, err := os.Stat(path); err == nil {
			when = when.Add(time.Nanosecond)
			continue
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return Entry{}, fmt.Errorf("attic: write %s: %w", path, err)
		}
		return Entry{RecordID: rec.ID, ArchivedAt: when, Path: path}, nil
	}
}

// Entries lists archived snapshots for one record id, oldest first.
func (a *Attic) Entries(id string) ([]Entry, error) {
	recDir := filepath.Join(a.dir, id)
	names, err := os.ReadDir(recDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attic: list %s: %w", recDir, err)
	}
	var out []Entry
	for _, e := range names {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		ts, err := time.Parse(timestampLayout, strings.TrimSuffix(e.Name(), ".md"))
		if err != nil {
			continue
		}
		out = append(out, Entry{
			RecordID:   id,
			ArchivedAt: ts,
			Path:       filepath.Join(recDir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.Before(out[j].ArchivedAt) })
	return out, nil
}

// List enumerates all archived snapshots across records.
func (a *Attic) List() ([]Entry, error) {
	ids, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attic: list %s: %w", a.dir, err)
	}
	var out []Entry
	for _, d := range ids {
		if !d.IsDir() {
			continue
		}
		entries, err := a.Entries(d.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Load reads an archived snapshot back into a record.
func (a *Attic) Load(e Entry) (*record.Record, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("attic: read %s: %w", e.Path, err)
	}
	return record.Unmarshal(data)
}
