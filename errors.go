package tiercache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a loader to confirm a key has no value, as
// opposed to returning a generic error. The engine caches this outcome via
// the AbsentMarker sentinel rather than surfacing it as a LoadFault.
var ErrNotFound = errors.New("tiercache: not found")

// LoadFault wraps a loader's own error (or a context cancellation observed
// while waiting for a loader). LoadFault and Interruption are the only fault
// classes that cross the GetOrLoad/GetOrLoadAll boundary.
type LoadFault struct {
	Key string
	Err error
}

func (e *LoadFault) Error() string { return fmt.Sprintf("tiercache: load %q: %v", e.Key, e.Err) }
func (e *LoadFault) Unwrap() error { return e.Err }

// Interruption wraps a context cancellation observed directly by the
// calling goroutine (as opposed to one surfaced through a shared loader via
// LoadFault).
type Interruption struct {
	Err error
}

func (e *Interruption) Error() string { return fmt.Sprintf("tiercache: interrupted: %v", e.Err) }
func (e *Interruption) Unwrap() error { return e.Err }
