// Package watcher provides file system watching for the record store, used
// by `spool watch` to trigger an automatic save when records change.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new record file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing record file was modified.
	OpModify
	// OpDelete indicates a record file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event represents one record file change.
type Event struct {
	// Path is the absolute path to the record file.
	Path string
	// RecordID is the id derived from the file name.
	RecordID string
	// Op is the operation that occurred.
	Op EventOp
}

// Watcher watches a records directory and emits debounced change events.
// Editors produce bursts of writes per save; events for the same file within
// the debounce window collapse to one.
type Watcher struct {
	watcher  *fsnotify.Watcher
	events   chan Event
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// New creates a watcher. Start it with Start before it emits events.
func New(debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:  w,
		events:   make(chan Event, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
		debounce: debounce,
	}, nil
}

// Events returns the debounced event channel.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the error channel.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start begins watching recordsDir for *.md events.
func (w *Watcher) Start(recordsDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(recordsDir); err != nil {
		return fmt.Errorf("watch records directory %s: %w", recordsDir, err)
	}
	w.running = true

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and closes the event channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	w.running = false
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	pending := make(map[string]Event)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		for _, ev := range pending {
			select {
			case w.events <- ev:
			default:
				// Receiver is not keeping up; drop rather than block.
			}
		}
		pending = make(map[string]Event)
	}

	for {
		select {
		case <-w.done:
			flush()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				flush()
				return
			}
			e, relevant := translate(ev)
			if !relevant {
				continue
			}
			pending[e.Path] = e
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				flush()
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		case <-timer.C:
			flush()
		}
	}
}

func translate(ev fsnotify.Event) (Event, bool) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".md") {
		return Event{}, false
	}
	e := Event{
		Path:     ev.Name,
		RecordID: strings.TrimSuffix(name, ".md"),
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		e.Op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		e.Op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		e.Op = OpDelete
	default:
		return Event{}, false
	}
	return e, true
}
