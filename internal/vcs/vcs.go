// Package vcs defines the version-control capability surface consumed by the
// sync engine, plus the shared failure taxonomy. The git implementation lives
// in internal/vcs/git.
//
// The engine needs a deliberately small surface: fetch, push with failure
// classification, content reads at a revision, branch management, and commits
// against an explicit isolated index. Everything else git can do is out of
// scope here.
package vcs

import (
	"fmt"
	"os"
	"path/filepath"
)

// IndexHandle is an explicit, per-call handle to an isolated git index file.
//
// Commits to the record branch must never disturb the repository's primary
// index (the user may be mid-staging on their own branch), and two
// overlapping logical operations in the same process must not share an index
// either. The handle is therefore created per operation and threaded through
// every git invocation that stages or commits, never stored in package state.
type IndexHandle struct {
	file string
}

// NewIndexHandle creates a fresh index file under dir. The caller must
// Release it when the operation completes.
func NewIndexHandle(dir string) (*IndexHandle, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("vcs: create index dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "index-*")
	if err != nil {
		return nil, fmt.Errorf("vcs: create index file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	// git refuses an existing zero-length index; start from a clean slate.
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("vcs: reset index file: %w", err)
	}
	return &IndexHandle{file: path}, nil
}

// Env returns the environment entry that points git at this index.
func (h *IndexHandle) Env() string {
	return "GIT_INDEX_FILE=" + h.file
}

// File returns the index file path.
func (h *IndexHandle) File() string { return h.file }

// Release deletes the index file. Safe to call on a nil handle.
func (h *IndexHandle) Release() {
	if h == nil {
		return
	}
	_ = os.Remove(h.file)
}

// DefaultIndexDir returns the scratch directory for isolated index files
// under the git common dir.
func DefaultIndexDir(commonDir string) string {
	return filepath.Join(commonDir, "spool", "index")
}
