// Package store reads and writes the on-disk record set: one markdown file
// per record under .spool/records, named by stable identifier. The same
// layout is used by the main store in the record-branch worktree and by every
// named snapshot, so snapshots mirror the main store with no transformation.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spoolhq/spool/internal/attic"
	"github.com/spoolhq/spool/internal/record"
)

// RecordsDir is the record directory relative to a store root.
const RecordsDir = ".spool/records"

// AtticDir is the conflict archive directory relative to a store root.
const AtticDir = ".spool/attic"

// Store is a record set rooted at one directory.
type Store struct {
	root string
}

// LoadError reports one unreadable record file. Corrupt files are isolated:
// they never abort processing of the rest of the store.
type LoadError struct {
	Path string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// New returns a store rooted at root. Directories are created lazily.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the records directory.
func (s *Store) Dir() string { return filepath.Join(s.root, filepath.FromSlash(RecordsDir)) }

// Attic returns the store's own conflict archive.
func (s *Store) Attic() *attic.Attic {
	return attic.New(filepath.Join(s.root, filepath.FromSlash(AtticDir)))
}

// Path returns the file path for a record id, whether or not it exists.
func (s *Store) Path(id string) string {
	return filepath.Join(s.Dir(), record.Filename(id))
}

// RelPath returns the record file path relative to the store root, in slash
// form, suitable for read-at-revision.
func RelPath(id string) string {
	return RecordsDir + "/" + record.Filename(id)
}

// Get loads one record by id. A missing file returns os.ErrNotExist.
func (s *Store) Get(id string) (*record.Record, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, err
	}
	rec, err := record.Unmarshal(data)
	if err != nil {
		return nil, LoadError{Path: s.Path(id), Err: err}
	}
	return rec, nil
}

// Put writes one record, creating the records directory if needed.
func (s *Store) Put(rec *record.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	data, err := record.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", rec.ID, err)
	}
	if err := os.MkdirAll(s.Dir(), 0o750); err != nil {
		return fmt.Errorf("create records dir: %w", err)
	}
	return os.WriteFile(s.Path(rec.ID), data, 0o600)
}

// Delete removes a record file. Missing files are not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.Path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IDs lists record ids present on disk, sorted.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}

// List loads every readable record. Unreadable files come back as LoadErrors
// alongside the good records instead of failing the whole listing.
func (s *Store) List() ([]*record.Record, []LoadError, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, nil, err
	}
	var (
		recs []*record.Record
		bad  []LoadError
	)
	for _, id := range ids {
		rec, err := s.Get(id)
		if err != nil {
			var le LoadError
			if !errors.As(err, &le) {
				le = LoadError{Path: s.Path(id), Err: err}
			}
			bad = append(bad, le)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, bad, nil
}
