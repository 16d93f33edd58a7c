package platform

// Native returns the strategy backed by the Go runtime's blocking mutex.
func Native() Strategy { return native{} }

type native struct{}

func (native) Name() string   { return `native` }
func (native) Threaded() bool { return true }

func (native) NewHandle() (Handle, error) {
	return &nativeHandle{}, nil
}

type nativeHandle struct {
	mu     nativeMutex
	closed bool
}

// Lock never fails; the error is there for the Handle contract.
func (h *nativeHandle) Lock() error {
	h.mu.Lock()
	return nil
}

func (h *nativeHandle) Unlock() error {
	h.mu.Unlock()
	return nil
}

func (h *nativeHandle) Close() error {
	if h.closed {
		return &Error{Op: `close`, Err: ErrClosed}
	}
	h.closed = true
	return nil
}
