package kthread

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"golang.org/x/sync/errgroup"
)

// Destructor releases values stored in a thread-local slot. A key's
// destructor is identified by pointer: registering the same *Destructor
// again is allowed, any other one is rejected, even if it wraps the same
// function.
type Destructor struct {
	fn func(any)
}

// NewDestructor returns a Destructor calling fn.
func NewDestructor(fn func(any)) *Destructor { return &Destructor{fn: fn} }

func (d *Destructor) destroy(v any) {
	if d != nil && d.fn != nil {
		d.fn(v)
	}
}

// Registry maps each Key to a Destructor and holds every goroutine's slot
// values. The zero Registry is ready to use; most programs use the process
// wide one through the package-level functions.
//
// Go has no goroutine exit hook. Goroutines started with Go or a Group run
// ThreadExit when they return; any other goroutine that sets a slot must
// call ThreadExit itself, or its values wait for Delete.
type Registry struct {
	init    Once
	initErr error
	mu      Mutex // guards registered and dtors

	registered [KeyMax]bool
	dtors      [KeyMax]*Destructor

	threads sync.Map // goroutine id -> *slots
}

type slots [KeyMax]atomic.Pointer[slotValue]

type slotValue struct{ v any }

func (s *slots) empty() bool {
	for k := range s {
		if v := s[k].Load(); v != nil && v.v != nil {
			return false
		}
	}
	return true
}

var defaultRegistry Registry

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return &defaultRegistry }

// Register installs d as the destructor for k. d may be nil. Registering
// the same destructor again is allowed; registering a different one is not.
func (r *Registry) Register(k Key, d *Destructor) error { return r.register(here(1), k, d) }

// Get returns the calling goroutine's value for k, or nil.
func (r *Registry) Get(k Key) any { return r.get(k) }

// Set stores v as the calling goroutine's value for k. A previous value is
// replaced without calling the destructor.
func (r *Registry) Set(k Key, v any) error { return r.set(here(1), k, v) }

// Delete unregisters k and calls its destructor once for every goroutine
// holding a non-nil value. The destructors run on the calling goroutine,
// before Delete returns.
func (r *Registry) Delete(k Key) error { return r.delete(here(1), k) }

// ThreadExit runs the destructor of every non-nil slot of the calling
// goroutine, on that goroutine, and forgets its slots.
func (r *Registry) ThreadExit() { r.threadExit() }

// Go runs fn on a new goroutine and calls ThreadExit when fn returns.
func (r *Registry) Go(fn func()) {
	go func() {
		defer r.threadExit()
		fn()
	}()
}

// Shutdown deletes every registered key.
func (r *Registry) Shutdown() error {
	if err := r.lock(); err != nil {
		return err
	}
	var keys []Key
	for k := Key(0); k < KeyMax; k++ {
		if r.registered[k] {
			keys = append(keys, k)
		}
	}
	if err := r.mu.Unlock(); err != nil {
		return err
	}

	for _, k := range keys {
		if err := r.delete(here(1), k); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) lock() error {
	if err := r.init.Do(func() {
		r.initErr = r.mu.FinishInit(WithName(`kthread registry`))
	}); err != nil {
		return err
	}
	if r.initErr != nil {
		return r.initErr
	}
	return r.mu.Lock()
}

// unlock releases the registry lock, adding a failure to *err.
func (r *Registry) unlock(err *error) {
	if uerr := r.mu.Unlock(); uerr != nil {
		*err = errors.Join(*err, uerr)
	}
}

func (r *Registry) register(site Location, k Key, d *Destructor) (err error) {
	if !k.Valid() {
		return r.violation(ErrRegister, `register`, site, k, `key out of range`)
	}
	if err := r.lock(); err != nil {
		return err
	}
	defer r.unlock(&err)

	if r.registered[k] {
		if r.dtors[k] == d {
			return nil
		}
		return r.violation(ErrRegister, `register`, site, k, `key registered with a different destructor`)
	}
	r.registered[k] = true
	r.dtors[k] = d
	logger().V(1).Info(`Key registered.`, `key`, k)
	return nil
}

func (r *Registry) get(k Key) any {
	if !k.Valid() {
		return nil
	}
	s, ok := r.threads.Load(goid.Get())
	if !ok {
		return nil
	}
	if v := s.(*slots)[k].Load(); v != nil {
		return v.v
	}
	return nil
}

func (r *Registry) set(site Location, k Key, v any) (err error) {
	if !k.Valid() {
		return r.violation(ErrSet, `set`, site, k, `key out of range`)
	}
	if err := r.lock(); err != nil {
		return err
	}
	defer r.unlock(&err)

	if !r.registered[k] {
		return r.violation(ErrSet, `set`, site, k, `key not registered`)
	}

	gid := goid.Get()
	s, ok := r.threads.Load(gid)
	if !ok {
		s, _ = r.threads.LoadOrStore(gid, new(slots))
	}
	s.(*slots)[k].Store(&slotValue{v: v})
	return nil
}

func (r *Registry) delete(site Location, k Key) error {
	if !k.Valid() {
		return r.violation(ErrDelete, `delete`, site, k, `key out of range`)
	}
	if err := r.lock(); err != nil {
		return err
	}

	if !r.registered[k] {
		if err := r.mu.Unlock(); err != nil {
			return err
		}
		return r.violation(ErrDelete, `delete`, site, k, `key not registered`)
	}
	d := r.dtors[k]
	r.registered[k] = false
	r.dtors[k] = nil

	var vals []any
	r.threads.Range(func(gid, s any) bool {
		ss := s.(*slots)
		if v := ss[k].Swap(nil); v != nil && v.v != nil {
			vals = append(vals, v.v)
		}
		// Goroutines that never called ThreadExit would otherwise stay
		// here for good.
		if ss.empty() {
			r.threads.CompareAndDelete(gid, s)
		}
		return true
	})
	if err := r.mu.Unlock(); err != nil {
		return err
	}

	for _, v := range vals {
		d.destroy(v)
	}
	logger().V(1).Info(`Key deleted.`, `key`, k, `destroyed`, len(vals))
	return nil
}

func (r *Registry) threadExit() {
	gid := goid.Get()
	if _, ok := r.threads.Load(gid); !ok {
		return
	}

	type pending struct {
		d *Destructor
		v any
	}
	var run []pending

	// Detach under the lock so a concurrent Delete either sees these
	// slots or finds them already emptied here.
	if err := r.lock(); err != nil {
		logger().Error(err, `Thread exit cleanup skipped.`)
		return
	}
	v, ok := r.threads.LoadAndDelete(gid)
	if !ok {
		if err := r.mu.Unlock(); err != nil {
			logger().Error(err, `Thread exit unlock failed.`)
		}
		return
	}
	s := v.(*slots)
	for k := Key(0); k < KeyMax; k++ {
		sv := s[k].Swap(nil)
		if sv == nil || sv.v == nil {
			continue
		}
		if d := r.dtors[k]; r.registered[k] && d != nil {
			run = append(run, pending{d: d, v: sv.v})
		}
	}
	if err := r.mu.Unlock(); err != nil {
		logger().Error(err, `Thread exit unlock failed.`)
	}

	for _, p := range run {
		p.d.destroy(p.v)
	}
}

func (r *Registry) violation(kind error, op string, site Location, k Key, msg string) error {
	return raise(logger(), &Error{Kind: kind, Op: op, Err: &ContractViolation{
		Op:   op,
		Name: k.String(),
		Msg:  msg,
		Site: site,
	}})
}

// Group is an errgroup.Group whose goroutines run ThreadExit on return.
type Group struct {
	r  *Registry
	eg *errgroup.Group
}

// NewGroup returns a Group bound to r, or to the default registry if r is
// nil, and a context canceled when a goroutine fails or Wait returns.
func NewGroup(ctx context.Context, r *Registry) (*Group, context.Context) {
	if r == nil {
		r = &defaultRegistry
	}
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{r: r, eg: eg}, ctx
}

func (g *Group) Go(fn func() error) {
	g.eg.Go(func() error {
		defer g.r.threadExit()
		return fn()
	})
}

// SetLimit limits the number of live goroutines in the group.
func (g *Group) SetLimit(n int) { g.eg.SetLimit(n) }

func (g *Group) Wait() error { return g.eg.Wait() }

// Register installs d as the destructor for k in the default registry.
func Register(k Key, d *Destructor) error { return defaultRegistry.register(here(1), k, d) }

// Get returns the calling goroutine's value for k in the default registry.
func Get(k Key) any { return defaultRegistry.get(k) }

// Set stores v for the calling goroutine in the default registry.
func Set(k Key, v any) error { return defaultRegistry.set(here(1), k, v) }

// Delete unregisters k from the default registry, destroying every value.
func Delete(k Key) error { return defaultRegistry.delete(here(1), k) }

// ThreadExit runs the calling goroutine's destructors in the default registry.
func ThreadExit() { defaultRegistry.threadExit() }

// Go runs fn on a new goroutine that cleans up its default registry slots
// when fn returns.
func Go(fn func()) { defaultRegistry.Go(fn) }

// Shutdown deletes every key of the default registry. Libraries call it
// from their teardown hook.
func Shutdown() error { return defaultRegistry.Shutdown() }
