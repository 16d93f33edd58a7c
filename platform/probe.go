package platform

import (
	"os"
	"runtime"
	"strconv"
	"sync"
)

// DisableThreadsEnv names the environment variable that, when set to a true
// value, makes ThreadingAvailable report false.
const DisableThreadsEnv = `KTHREAD_DISABLE_THREADS`

var threadingAvailable = sync.OnceValue(probeThreads)

// ThreadingAvailable reports whether real blocking threads can be used in
// this process. It is computed once, on first call, and never changes.
func ThreadingAvailable() bool { return threadingAvailable() }

func probeThreads() bool {
	// wasm ports run the scheduler on a single thread.
	if runtime.GOARCH == `wasm` {
		return false
	}
	if v, ok := os.LookupEnv(DisableThreadsEnv); ok {
		if off, err := strconv.ParseBool(v); err == nil && off {
			return false
		}
	}
	return true
}

// Probe returns the threaded-with-graceful-degradation strategy. Handles are
// native when ThreadingAvailable reports true and no-thread otherwise.
func Probe() Strategy { return probe{available: ThreadingAvailable} }

// ProbeWith is Probe with a custom capability check. The check runs at most
// once no matter how many handles are created.
func ProbeWith(check func() bool) Strategy {
	return probe{available: sync.OnceValue(check)}
}

type probe struct {
	available func() bool
}

func (p probe) Name() string {
	if p.available() {
		return `probe/native`
	}
	return `probe/nothreads`
}

func (p probe) Threaded() bool { return p.available() }

func (p probe) NewHandle() (Handle, error) {
	if p.available() {
		return native{}.NewHandle()
	}
	return nothread{}.NewHandle()
}
