package kthread

import (
	"errors"
	"fmt"
)

// KeySpec pairs a thread-local key with its destructor.
type KeySpec struct {
	Key        Key
	Destructor *Destructor
}

// Library holds the synchronization state one consuming library owns,
// together with its load and unload hooks.
//
// Mutexes are declared statically (zero Mutex values) and listed here;
// Initialize finishes them and registers Keys exactly once, no matter how
// many entry points call it. Finalize undoes both.
type Library struct {
	Name     string
	Mutexes  []*Mutex
	Keys     []KeySpec
	Options  []Option  // applied to every mutex
	Registry *Registry // nil means the default registry

	// Setup, if set, runs after the mutexes and keys are ready.
	Setup func() error

	init       Once
	initErr    error
	fini       Once
	finiErr    error
	registered []Key
}

// Initialize is the library load hook. The first call does the work; later
// calls return its result.
func (l *Library) Initialize() error {
	if err := l.init.Do(func() { l.initErr = l.initialize() }); err != nil {
		return err
	}
	return l.initErr
}

// Finalize is the library unload hook. It deletes every key Initialize
// registered, then destroys every mutex Initialize finished. It does
// nothing if Initialize has not completed.
func (l *Library) Finalize() error {
	if !l.init.Done() {
		return nil
	}
	if err := l.fini.Do(func() { l.finiErr = l.finalize() }); err != nil {
		return err
	}
	return l.finiErr
}

func (l *Library) initialize() error {
	log := logger().WithValues(`library`, l.Name)
	r := l.registry()

	for i, m := range l.Mutexes {
		opts := append([]Option{WithName(fmt.Sprintf(`%s/%d`, l.Name, i))}, l.Options...)
		if err := m.FinishInit(opts...); err != nil {
			return fmt.Errorf(`library %s: %w`, l.Name, err)
		}
	}
	for _, ks := range l.Keys {
		if err := r.register(here(1), ks.Key, ks.Destructor); err != nil {
			return fmt.Errorf(`library %s: %w`, l.Name, err)
		}
		l.registered = append(l.registered, ks.Key)
	}
	if l.Setup != nil {
		if err := l.Setup(); err != nil {
			return fmt.Errorf(`library %s setup: %w`, l.Name, err)
		}
	}

	log.V(1).Info(`Library initialized.`, `mutexes`, len(l.Mutexes), `keys`, len(l.registered))
	return nil
}

func (l *Library) finalize() error {
	var errs []error
	r := l.registry()
	for _, k := range l.registered {
		if err := r.delete(here(1), k); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range l.Mutexes {
		if m.State() != Initialized {
			continue
		}
		if err := m.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf(`library %s: %w`, l.Name, err)
	}
	logger().V(1).Info(`Library finalized.`, `library`, l.Name)
	return nil
}

func (l *Library) registry() *Registry {
	if l.Registry != nil {
		return l.Registry
	}
	return &defaultRegistry
}
