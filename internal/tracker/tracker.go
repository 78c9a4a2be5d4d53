// Package tracker mirrors record status and labels to and from a linked
// external issue tracker. It is consumed only by the sync orchestrator, as a
// batch step of an explicit sync, never as a side effect of an individual
// record mutation.
package tracker

import (
	"context"
	"os/exec"

	"github.com/spoolhq/spool/internal/record"
)

// State is the externally visible state of one linked issue.
type State struct {
	State  string // "open" or "closed"
	Reason string // e.g. "completed", "not planned"; empty when open
	Labels []string
}

// Tracker is the capability surface the orchestrator consumes.
type Tracker interface {
	GetState(ctx context.Context, ref string) (State, error)
	SetState(ctx context.Context, ref, state, reason string) error
	AddLabel(ctx context.Context, ref, label string) error
	RemoveLabel(ctx context.Context, ref, label string) error
	// EnsureLabel predeclares a label idempotently; "already exists" is
	// success.
	EnsureLabel(ctx context.Context, label string) error
}

// Capability says whether an external tracker is usable. Resolved once at
// startup and passed into the orchestrator explicitly, instead of re-probing
// the environment at every call site.
type Capability struct {
	Available bool
	Reason    string // why unavailable, for the summary line
}

// Detect probes for the gh CLI.
func Detect() Capability {
	if _, err := exec.LookPath("gh"); err != nil {
		return Capability{Available: false, Reason: "gh CLI not found in PATH"}
	}
	return Capability{Available: true}
}

// PushMapping returns the external (state, reason) for a local status, and
// whether the status maps at all. Statuses with no external analogue
// (blocked, deferred) produce no external change.
func PushMapping(s record.Status) (state, reason string, ok bool) {
	switch s {
	case record.StatusOpen, record.StatusInProgress:
		return "open", "", true
	case record.StatusClosed:
		return "closed", "completed", true
	default:
		return "", "", false
	}
}

// PullMapping returns the local status for an external (state, reason), and
// whether the combination maps. Unmapped combinations leave the local status
// untouched.
func PullMapping(state, reason string) (record.Status, bool) {
	switch state {
	case "open", "OPEN":
		return record.StatusOpen, true
	case "closed", "CLOSED":
		return record.StatusClosed, true
	default:
		return "", false
	}
}
