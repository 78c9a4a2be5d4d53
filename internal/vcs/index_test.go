package vcs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIndexHandleLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")

	h1, err := NewIndexHandle(dir)
	if err != nil {
		t.Fatalf("NewIndexHandle() failed: %v", err)
	}
	defer h1.Release()

	h2, err := NewIndexHandle(dir)
	if err != nil {
		t.Fatalf("second NewIndexHandle() failed: %v", err)
	}
	defer h2.Release()

	// Overlapping operations must not share an index file.
	if h1.File() == h2.File() {
		t.Fatal("two handles share one index file")
	}

	if !strings.HasPrefix(h1.Env(), "GIT_INDEX_FILE=") {
		t.Errorf("Env() = %q", h1.Env())
	}

	// The file must not pre-exist: git refuses a zero-length index.
	if _, err := os.Stat(h1.File()); !os.IsNotExist(err) {
		t.Error("index file exists before git writes it")
	}
}

func TestIndexHandleReleaseIsIdempotent(t *testing.T) {
	h, err := NewIndexHandle(t.TempDir())
	if err != nil {
		t.Fatalf("NewIndexHandle() failed: %v", err)
	}
	h.Release()
	h.Release()

	var nilHandle *IndexHandle
	nilHandle.Release()
}
