package platform

import (
	"errors"
	"runtime"

	"golang.org/x/sys/windows"
)

var errWaitResult = errors.New(`unexpected wait result`)

// Handles returns the strategy backed by Windows mutex objects. Handles are
// allocated at finish-init, never statically.
//
// Windows mutexes belong to an OS thread, so a goroutine stays pinned to its
// thread from Lock until the matching Unlock.
func Handles() Strategy { return handles{} }

type handles struct{}

func (handles) Name() string   { return `handle` }
func (handles) Threaded() bool { return true }

func (handles) NewHandle() (Handle, error) {
	h, err := windows.CreateMutex(nil, false, nil)
	if err != nil {
		return nil, winError(`CreateMutex`, err)
	}
	return &winHandle{h: h}, nil
}

type winHandle struct {
	h windows.Handle
}

func (w *winHandle) Lock() error {
	if w.h == 0 {
		return &Error{Op: `lock`, Err: ErrClosed}
	}

	runtime.LockOSThread()
	ev, err := windows.WaitForSingleObject(w.h, windows.INFINITE)
	switch ev {
	case windows.WAIT_OBJECT_0:
	case windows.WAIT_ABANDONED:
		// The previous owner exited while holding it. We own it now.
	case windows.WAIT_FAILED:
		runtime.UnlockOSThread()
		return winError(`WaitForSingleObject`, err)
	default:
		runtime.UnlockOSThread()
		return &Error{Op: `WaitForSingleObject`, Code: uintptr(ev), Err: errWaitResult}
	}
	return nil
}

func (w *winHandle) Unlock() error {
	if err := windows.ReleaseMutex(w.h); err != nil {
		return winError(`ReleaseMutex`, err)
	}
	runtime.UnlockOSThread()
	return nil
}

func (w *winHandle) Close() error {
	if w.h == 0 {
		return &Error{Op: `close`, Err: ErrClosed}
	}
	if err := windows.CloseHandle(w.h); err != nil {
		return winError(`CloseHandle`, err)
	}
	w.h = 0
	return nil
}

func winError(op string, err error) error {
	e := &Error{Op: op, Err: err}
	var errno windows.Errno
	if errors.As(err, &errno) {
		e.Code = uintptr(errno)
	}
	return e
}
