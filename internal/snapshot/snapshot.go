// Package snapshot implements named staging stores: independently saved
// copies of the record set that mirror the main store's layout exactly.
// Snapshots exist for the paths the normal sync cannot take, staging work
// when a push is permanently rejected, bulk external editing, point-in-time
// backup, and cross-repository transfer. The name "outbox" is a convention
// for the failure-recovery snapshot, nothing more; the engine treats it like
// any other name.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spoolhq/spool/internal/merge"
	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/store"
)

// Manager owns the snapshot root directory, one subdirectory per name.
type Manager struct {
	root string
	now  merge.Clock
}

// New returns a manager rooted at root (conventionally
// <git-common-dir>/spool/snapshots). now defaults to time.Now.
func New(root string, now merge.Clock) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{root: root, now: now}
}

// Store returns the named snapshot as a record store. The snapshot need not
// exist yet; saving creates it.
func (m *Manager) Store(name string) *store.Store {
	return store.New(filepath.Join(m.root, name))
}

// BaselineFunc returns a record's content at the last-known-synced remote
// state, or nil when the record is absent there. Implementations read from a
// cached revision so they work with the network down.
type BaselineFunc func(id string) (*record.Record, error)

// SaveOptions controls what Save stages.
type SaveOptions struct {
	// UpdatesOnly stages only records substantively changed relative to
	// Baseline instead of the whole store.
	UpdatesOnly bool

	// Baseline supplies the last-synced content for UpdatesOnly. Required
	// when UpdatesOnly is set: falling back to "everything is modified"
	// would produce exactly the bulk trivial-change snapshots incremental
	// staging exists to prevent.
	Baseline BaselineFunc
}

// SaveResult summarizes one save.
type SaveResult struct {
	Name      string
	Saved     int
	Unchanged int
	Skipped   []store.LoadError
	Conflicts []merge.Conflict
}

// Save stages records from main into the named snapshot, merging onto any
// content already there. Merge losers archive to the snapshot's own attic,
// never the main store's, since the main store may be the unreachable thing
// that prompted the save.
func (m *Manager) Save(main *store.Store, name string, opts SaveOptions) (*SaveResult, error) {
	if name == "" {
		return nil, fmt.Errorf("snapshot name is required")
	}
	if opts.UpdatesOnly && opts.Baseline == nil {
		return nil, fmt.Errorf("incremental save requires a cached sync baseline; run a full save or sync first")
	}

	recs, bad, err := main.List()
	if err != nil {
		return nil, err
	}
	target := m.Store(name)
	res := &SaveResult{Name: name, Skipped: bad}

	for _, rec := range recs {
		if opts.UpdatesOnly {
			base, err := opts.Baseline(rec.ID)
			if err != nil {
				return nil, fmt.Errorf("baseline for %s: %w", rec.ID, err)
			}
			if base != nil && record.Equivalent(rec, base) {
				res.Unchanged++
				continue
			}
		}
		changed, conflicts, err := m.mergeInto(target, rec)
		if err != nil {
			return nil, err
		}
		res.Conflicts = append(res.Conflicts, conflicts...)
		if changed {
			res.Saved++
		} else {
			res.Unchanged++
		}
	}
	return res, nil
}

// mergeInto merges one incoming record onto the target store, archiving
// conflict losers to the target's attic. Reports whether the target changed.
func (m *Manager) mergeInto(target *store.Store, incoming *record.Record) (bool, []merge.Conflict, error) {
	existing, err := target.Get(incoming.ID)
	if err != nil && !os.IsNotExist(err) {
		return false, nil, err
	}
	if existing == nil {
		return true, nil, target.Put(incoming)
	}

	result := merge.Records(merge.LocalSide(existing), merge.RemoteSide(incoming), nil, m.now)
	// Archive each losing side once, however many of its fields lost.
	lost := make(map[merge.Side]bool, 2)
	for _, c := range result.Conflicts {
		if lost[c.LoserSide] {
			continue
		}
		lost[c.LoserSide] = true
		loser := existing
		if c.LoserSide == merge.SideRemote {
			loser = incoming
		}
		if _, err := target.Attic().Archive(loser, m.now()); err != nil {
			return false, nil, err
		}
	}
	if !result.Changed && record.Equivalent(result.Merged, existing) {
		return false, result.Conflicts, nil
	}
	return true, result.Conflicts, target.Put(result.Merged)
}

// List returns existing snapshot names, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a named snapshot entirely.
func (m *Manager) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	path := filepath.Join(m.root, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("snapshot %q does not exist", name)
	}
	return os.RemoveAll(path)
}
