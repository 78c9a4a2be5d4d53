package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spoolhq/spool/internal/merge"
	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/store"
)

// ImportResult summarizes one import.
type ImportResult struct {
	Name      string
	Imported  int
	Unchanged int
	Skipped   []store.LoadError
	Conflicts []merge.Conflict
	Commit    string
	Cleared   bool
}

// Import merges the named snapshot into the main store, conflicts routed to
// the main attic, then calls commit. Only after commit reports success is the
// snapshot optionally deleted: clearing must never precede a confirmed
// commit, or a failed commit silently destroys the staged copy.
func (m *Manager) Import(main *store.Store, name string, commit func() (string, error), clear bool) (*ImportResult, error) {
	source := m.Store(name)
	if _, err := os.Stat(source.Root()); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot %q does not exist", name)
	}

	recs, bad, err := source.List()
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Name: name, Skipped: bad}

	for _, incoming := range recs {
		existing, err := main.Get(incoming.ID)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if existing == nil {
			if err := main.Put(incoming); err != nil {
				return nil, err
			}
			res.Imported++
			continue
		}
		result := merge.Records(merge.LocalSide(existing), merge.RemoteSide(incoming), nil, m.now)
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
			if _, err := main.Attic().Archive(loser, m.now()); err != nil {
				return nil, err
			}
		}
		res.Conflicts = append(res.Conflicts, result.Conflicts...)
		if !result.Changed && record.Equivalent(result.Merged, existing) {
			res.Unchanged++
			continue
		}
		if err := main.Put(result.Merged); err != nil {
			return nil, err
		}
		res.Imported++
	}

	hash, err := commit()
	if err != nil {
		return res, fmt.Errorf("import committed nothing, snapshot %q retained: %w", name, err)
	}
	res.Commit = hash

	if clear {
		if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
			return res, fmt.Errorf("clear snapshot %q: %w", name, err)
		}
		res.Cleared = true
	}
	return res, nil
}
