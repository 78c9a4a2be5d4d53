package vcs

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by VCS implementations and their callers.
var (
	// ErrAbsent reports that a path does not exist at the requested revision.
	// Callers treat this as "record not present on that side", not a failure.
	ErrAbsent = errors.New("path absent at revision")

	// ErrRemoteRefMissing reports that the remote exists but has no ref for
	// the requested branch. First push from a fresh clone hits this.
	ErrRemoteRefMissing = errors.New("remote ref missing")

	// ErrNoRemote reports that the repository has no remote configured at
	// all. Sync degrades to local-only in that case.
	ErrNoRemote = errors.New("no remote configured")
)

// PushError is a push failure annotated with its failure class so the retry
// loop can decide between retrying, refreshing, and giving up without
// re-parsing git output.
type PushError struct {
	Class  FailureClass
	Output string
	Err    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push failed (%s): %v", e.Class, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class from err, defaulting to unknown-as-
// transient for errors that carry no classification.
func ClassOf(err error) FailureClass {
	var pe *PushError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}
