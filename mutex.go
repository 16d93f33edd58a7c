package kthread

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
	"github.com/petermattis/goid"
)

// InitState is the initialization state of a Mutex.
type InitState int32

const (
	// PartlyInitialized is the state of the zero Mutex.
	PartlyInitialized InitState = iota
	Initialized
	Destroyed
	// Uninitialized is never produced by this package; a Mutex starts
	// out PartlyInitialized.
	Uninitialized

	initializing
)

// Lock states, kept in the low bits of the lock word above a count of
// acquisitions. A cell stays releasing until the native unlock returns, so
// Destroy cannot close the handle under an Unlock in progress.
const (
	unlocked int64 = iota
	held
	releasing

	lockStateMask = 3
)

func lockState(w int64) int64 { return w & lockStateMask }

func withLockState(w, st int64) int64 { return w&^lockStateMask | st }

func (s InitState) String() string {
	switch s {
	case PartlyInitialized:
		return `partly initialized`
	case Initialized:
		return `initialized`
	case Destroyed:
		return `destroyed`
	case Uninitialized:
		return `uninitialized`
	case initializing:
		return `initializing`
	}
	return fmt.Sprintf(`InitState(%d)`, int32(s))
}

// Mutex is a mutual exclusion lock with an explicit initialization state
// machine.
//
// The zero Mutex is the static partial initializer: it can be declared as a
// package variable but must be finished with FinishInit before use. A Mutex
// must not be copied.
type Mutex struct {
	name  string
	log   logr.Logger
	yield bool
	clock clockwork.Clock
	strat Strategy

	state   atomic.Int32
	lk      atomic.Int64 // acquisitions<<2 | lock state
	owner   atomic.Int64 // goroutine id of the holder
	h       Handle
	created atomic.Pointer[Location]
	last    atomic.Pointer[Location]
	s       stats
}

// New allocates and initializes a Mutex.
func New(opts ...Option) (*Mutex, error) {
	m := &Mutex{}
	if err := m.dynamicInit(here(1), opts); err != nil {
		return nil, err
	}
	return m, nil
}

// FinishInit completes initialization of a statically declared Mutex.
// It must be called exactly once, typically from a Once; calling it in any
// state but PartlyInitialized is a contract violation.
func (m *Mutex) FinishInit(opts ...Option) error {
	return m.init(`finish init`, here(1), opts)
}

// Init initializes a Mutex that was not set up through FinishInit, such as
// one embedded in a heap object. A destroyed Mutex may be initialized again.
func (m *Mutex) Init(opts ...Option) error {
	return m.dynamicInit(here(1), opts)
}

func (m *Mutex) dynamicInit(site Location, opts []Option) error {
	if m.state.CompareAndSwap(int32(Destroyed), int32(PartlyInitialized)) {
		m.lk.Store(withLockState(m.lk.Load(), unlocked))
		m.owner.Store(0)
	}
	return m.init(`init`, site, opts)
}

func (m *Mutex) init(op string, site Location, opts []Option) error {
	if !m.state.CompareAndSwap(int32(PartlyInitialized), int32(initializing)) {
		return m.violation(ErrInit, op, site, fmt.Sprintf(`mutex is %s`, m.State()))
	}
	if m.isLocked() {
		m.state.Store(int32(PartlyInitialized))
		return m.violation(ErrInit, op, site, `mutex is locked`)
	}

	m.log = logger()
	for _, o := range opts {
		o(m)
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}

	h, err := m.strategy().NewHandle()
	if err != nil {
		m.state.Store(int32(PartlyInitialized))
		return &Error{Kind: ErrInit, Op: op, Err: err}
	}

	m.h = h
	m.created.Store(&site)
	m.last.Store(&site)
	m.s.reset(m.clock)
	m.state.Store(int32(Initialized))
	m.log.V(1).Info(`Mutex initialized.`, `name`, m.name, `strategy`, m.strategy().Name())
	return nil
}

// Destroy releases the native resource. The Mutex must be initialized and
// unlocked. Destroying a locked Mutex fails with ErrLocked and changes
// nothing, so the caller may unlock and retry.
func (m *Mutex) Destroy() error {
	site := here(1)
	if st := m.State(); st != Initialized {
		return m.violation(ErrDestroy, `destroy`, site, fmt.Sprintf(`mutex is %s`, st))
	}
	if m.isLocked() {
		return &Error{Kind: ErrDestroy, Op: `destroy`, Err: ErrLocked}
	}
	if !m.state.CompareAndSwap(int32(Initialized), int32(Destroyed)) {
		return m.violation(ErrDestroy, `destroy`, site, fmt.Sprintf(`mutex is %s`, m.State()))
	}

	if err := m.h.Close(); err != nil {
		m.state.Store(int32(Initialized))
		return &Error{Kind: ErrDestroy, Op: `destroy`, Err: err}
	}
	if StatsEnabled {
		m.s.snapshot().Report(m.log.V(1), m.name)
	}
	m.h = nil
	m.last.Store(&site)
	return nil
}

// Lock blocks until the calling goroutine holds m. Locking a Mutex the
// calling goroutine already holds is a contract violation, not a deadlock.
func (m *Mutex) Lock() error {
	site := here(1)
	if st := m.State(); st != Initialized {
		return m.violation(ErrLock, `lock`, site, fmt.Sprintf(`mutex is %s`, st))
	}

	gid := goid.Get()
	if m.isLocked() && m.owner.Load() == gid {
		return m.violation(ErrLock, `lock`, site, `already locked by this goroutine`)
	}

	start := m.s.now()
	if err := m.h.Lock(); err != nil {
		return &Error{Kind: ErrLock, Op: `lock`, Err: err}
	}

	m.owner.Store(gid)
	m.lk.Store(withLockState(m.lk.Load()+lockStateMask+1, held))
	m.last.Store(&site)
	m.s.acquired(start)

	if m.yield {
		runtime.Gosched()
	}
	return nil
}

// Unlock releases m. Any goroutine may unlock a held Mutex, except with
// the handle strategy, where the native facility requires the holder.
func (m *Mutex) Unlock() error {
	site := here(1)
	if st := m.State(); st != Initialized {
		return m.violation(ErrUnlock, `unlock`, site, fmt.Sprintf(`mutex is %s`, st))
	}
	w := m.lk.Load()
	if lockState(w) != held || !m.lk.CompareAndSwap(w, withLockState(w, releasing)) {
		return m.violation(ErrUnlock, `unlock`, site, `mutex is not locked`)
	}

	gid := m.owner.Swap(0)
	at := m.s.holding()
	m.last.Store(&site)

	if m.yield {
		runtime.Gosched()
	}

	if err := m.h.Unlock(); err != nil {
		m.owner.Store(gid)
		m.lk.Store(w)
		return &Error{Kind: ErrUnlock, Op: `unlock`, Err: err}
	}
	// A new holder may already have taken the lock word; leave it alone.
	m.lk.CompareAndSwap(withLockState(w, releasing), withLockState(w, unlocked))
	m.s.released(at)
	return nil
}

// AssertLocked panics in debug builds if m is not held. It does nothing in
// release builds, so callers must not depend on it.
func (m *Mutex) AssertLocked() {
	if !debugEnabled {
		return
	}
	if m.State() != Initialized || !m.isLocked() {
		m.violation(ErrAssert, `assert locked`, here(1), `mutex is not locked`)
	}
}

// AssertUnlocked panics in debug builds if m is held. It does nothing in
// release builds.
func (m *Mutex) AssertUnlocked() {
	if !debugEnabled {
		return
	}
	if m.State() != Initialized || m.isLocked() {
		m.violation(ErrAssert, `assert unlocked`, here(1), `mutex is locked`)
	}
}

func (m *Mutex) State() InitState { return InitState(m.state.Load()) }

func (m *Mutex) Name() string { return m.name }

// Stats returns a snapshot of the mutex statistics.
// The returned struct is a copy and safe to use without synchronization.
func (m *Mutex) Stats() Stats { return m.s.snapshot() }

// Created returns where m was initialized, if recorded.
func (m *Mutex) Created() Location { return loadLoc(&m.created) }

// LastTouched returns where m was last initialized, locked, unlocked or
// destroyed, if recorded.
func (m *Mutex) LastTouched() Location { return loadLoc(&m.last) }

// isLocked reports whether m is held or still being released.
func (m *Mutex) isLocked() bool { return lockState(m.lk.Load()) != unlocked }

func (m *Mutex) strategy() Strategy {
	if m.strat != nil {
		return m.strat
	}
	return defaultStrategy
}

func (m *Mutex) violation(kind error, op string, site Location, msg string) error {
	log := m.log
	if log.GetSink() == nil {
		log = logger()
	}
	return raise(log, &Error{Kind: kind, Op: op, Err: &ContractViolation{
		Op:      op,
		Name:    m.name,
		Msg:     msg,
		Site:    site,
		Created: m.Created(),
		Last:    m.LastTouched(),
	}})
}

func loadLoc(p *atomic.Pointer[Location]) Location {
	if l := p.Load(); l != nil {
		return *l
	}
	return Location{}
}
