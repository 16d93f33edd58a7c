package kthread

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

const (
	notRun uint32 = iota
	running
	done
)

// Once runs an initializer exactly once for the life of the process.
// The zero Once is ready to use. A Once must not be copied.
//
// With a threaded strategy Once is built on sync.Once and concurrent callers
// wait for the initializer to finish. Without threads it keeps the state
// itself and nothing ever waits.
type Once struct {
	state atomic.Uint32
	owner atomic.Int64
	once  sync.Once
}

// Do calls f if and only if Do is being called for the first time on o.
// A call to Do from inside f would deadlock; it is reported as a contract
// violation instead.
func (o *Once) Do(f func()) error {
	if o.state.Load() == done {
		return nil
	}

	gid := goid.Get()
	if o.state.Load() == running && o.owner.Load() == gid {
		return o.violation(here(1), `reentrant call from the initializer`)
	}

	if !defaultStrategy.Threaded() {
		if !o.state.CompareAndSwap(notRun, running) {
			if o.state.Load() == done {
				return nil
			}
			return o.violation(here(1), `initializer already running`)
		}
		o.run(f, gid)
		return nil
	}

	o.once.Do(func() {
		o.state.Store(running)
		o.run(f, gid)
	})
	return nil
}

// Done reports whether the initializer has returned.
func (o *Once) Done() bool { return o.state.Load() == done }

func (o *Once) run(f func(), gid int64) {
	o.owner.Store(gid)
	defer func() {
		o.owner.Store(0)
		o.state.Store(done)
	}()
	f()
}

func (o *Once) violation(site Location, msg string) error {
	return raise(logger(), &Error{Kind: ErrOnce, Op: `once`, Err: &ContractViolation{
		Op:   `once`,
		Msg:  msg,
		Site: site,
	}})
}
