// Package platform provides the native blocking facilities a kthread.Mutex
// sits on.
//
// There are four strategies, and exactly one of them is the build default
// returned by Default:
//
//   - native: sync.Mutex (go-deadlock when built with kthread_debug)
//   - probe: native if ThreadingAvailable reports true, no-thread otherwise
//   - handle: Windows mutex handles, the default on windows
//   - nothreads: a single logical thread, selected by kthread_nothreads
//
// The non-default strategies stay constructible so they can be tested side by
// side, but nothing in kthread switches between them at run time.
package platform

import (
	"errors"
	"fmt"
)

// Handle is a native lock resource owned by exactly one mutex cell.
type Handle interface {
	Lock() error
	Unlock() error
	Close() error
}

// Strategy creates handles for one native facility.
type Strategy interface {
	// Name identifies the strategy in diagnostics.
	Name() string
	// Threaded reports whether handles from this strategy really block.
	Threaded() bool
	NewHandle() (Handle, error)
}

// ErrWouldBlock is returned by no-thread handles when a lock could only
// succeed by waiting for another thread, which cannot exist.
var ErrWouldBlock = errors.New(`lock would block with no threads`)

// ErrNotLocked is returned when a handle is released without being held.
var ErrNotLocked = errors.New(`handle not locked`)

// ErrClosed is returned by operations on a handle that was already closed.
var ErrClosed = errors.New(`handle closed`)

// Error is a failure reported by the native facility. Code is the native
// error code, passed through unchanged.
type Error struct {
	Op   string
	Code uintptr
	Err  error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf(`%s: %v`, e.Op, e.Err)
	}
	return fmt.Sprintf(`%s: %v (code %d)`, e.Op, e.Err, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }
