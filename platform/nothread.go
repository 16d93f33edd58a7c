package platform

import "sync/atomic"

// NoThreads returns the strategy for a single logical thread. Its handles
// perform the lock state transitions without ever blocking; a lock that
// would have to wait fails with ErrWouldBlock instead.
func NoThreads() Strategy { return nothread{} }

type nothread struct{}

func (nothread) Name() string   { return `nothreads` }
func (nothread) Threaded() bool { return false }

func (nothread) NewHandle() (Handle, error) {
	return &nothreadHandle{}, nil
}

type nothreadHandle struct {
	locked atomic.Bool
	closed atomic.Bool
}

func (h *nothreadHandle) Lock() error {
	if !h.locked.CompareAndSwap(false, true) {
		return &Error{Op: `lock`, Err: ErrWouldBlock}
	}
	return nil
}

func (h *nothreadHandle) Unlock() error {
	if !h.locked.CompareAndSwap(true, false) {
		return &Error{Op: `unlock`, Err: ErrNotLocked}
	}
	return nil
}

func (h *nothreadHandle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return &Error{Op: `close`, Err: ErrClosed}
	}
	return nil
}
