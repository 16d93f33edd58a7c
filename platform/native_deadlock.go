//go:build kthread_debug

package platform

import (
	"bytes"
	"sync"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the native strategy uses the deadlock detector.
const DeadlockEnabled = true

// Lock order is the caller's business, and a long wait is reported, never
// fatal.
func init() {
	deadlock.Opts.DisableLockOrderDetection = true
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
	deadlock.Opts.LogBuf = &deadlockLog
	deadlock.Opts.OnPotentialDeadlock = deadlockLog.flush
}

var deadlockLog report

// report collects what the detector writes and hands it to the logger in
// one entry.
type report struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *report) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *report) flush() {
	r.mu.Lock()
	msg := r.buf.String()
	r.buf.Reset()
	r.mu.Unlock()

	logger().Info(`Potential deadlock.`, `report`, msg)
}

type nativeMutex = deadlock.Mutex
