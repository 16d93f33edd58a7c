package kthread

import (
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"github.com/violin0622/kthread/platform"
)

type Option func(*Mutex)

// WithName names the mutex in diagnostics.
func WithName(name string) Option {
	return func(m *Mutex) { m.name = name }
}

func WithLogr(l logr.Logger) Option {
	return func(m *Mutex) { m.log = l }
}

// WithYield makes Lock yield the processor after acquiring and Unlock yield
// before releasing. It is a scheduling hint with no fairness guarantee.
func WithYield() Option {
	return func(m *Mutex) { m.yield = true }
}

// WithClock sets the clock used for timing statistics.
func WithClock(c clockwork.Clock) Option {
	return func(m *Mutex) { m.clock = c }
}

func withStrategy(s Strategy) Option {
	return func(m *Mutex) { m.strat = s }
}

var defaultLog atomic.Pointer[logr.Logger]

// SetLogger sets the logger used by mutexes initialized without WithLogr,
// by the default registry and by the platform strategies.
func SetLogger(l logr.Logger) {
	defaultLog.Store(&l)
	platform.SetLogger(l)
}

func logger() logr.Logger {
	if l := defaultLog.Load(); l != nil {
		return *l
	}
	return logr.Discard()
}
