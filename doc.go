// Package kthread provides the thread-synchronization substrate of a
// credential library: a mutex with an explicit initialization state machine,
// a run-once gate, and thread-local slots with destructors.
//
// # Overview
//
//   - Two-phase init: the zero Mutex is a static partial initializer,
//     completed once by FinishInit at library load
//   - Checked state machine: double lock, unlock without lock, use before
//     init and use after destroy are reported, never undefined
//   - Strategy-based: the native facility is chosen at build time (see the
//     platform package)
//   - Thread-local slots: a fixed key space, one destructor per key, values
//     per goroutine
//
// # Basic Usage
//
//	var (
//	    cacheMu  kthread.Mutex // partly initialized
//	    initOnce kthread.Once
//	)
//
//	func libInit() error {
//	    var err error
//	    if e := initOnce.Do(func() { err = cacheMu.FinishInit() }); e != nil {
//	        return e
//	    }
//	    return err
//	}
//
//	if err := cacheMu.Lock(); err != nil {
//	    return err
//	}
//	defer cacheMu.Unlock()
//
//	// critical section
//
// Library bundles this init and teardown for a set of mutexes and keys.
//
// # Thread-local Slots
//
//	var freeErrState = kthread.NewDestructor(func(v any) { v.(*errState).free() })
//
//	kthread.Register(kthread.KeyComErr, freeErrState)
//	kthread.Set(kthread.KeyComErr, newErrState())
//	st, _ := kthread.Get(kthread.KeyComErr).(*errState)
//
// A goroutine counts as a thread. Goroutines started through Go or a Group
// run their slot destructors when they return; Delete runs the destructors
// of every goroutine on the caller.
//
// # Build Tags
//
//   - kthread_debug: record call sites, enforce AssertLocked and
//     AssertUnlocked, panic on contract violations, use go-deadlock natively
//   - kthread_stats: collect lock wait and hold times, see Mutex.Stats
//   - kthread_nothreads: single logical thread, nothing blocks
//   - kthread_probe: native locks only if ThreadingAvailable
//
// On windows the default strategy uses Windows mutex handles.
//
// # Errors
//
// Every failure is an *Error matching one kind (ErrInit, ErrLock, ...) and
// either ErrContractViolation or a *platform.Error. Release builds return
// contract violations; debug builds panic with them. Lock ordering across
// mutexes is the caller's responsibility and is not checked.
package kthread
