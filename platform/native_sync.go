//go:build !kthread_debug

package platform

import "sync"

// DeadlockEnabled is true if the native strategy uses the deadlock detector.
const DeadlockEnabled = false

type nativeMutex = sync.Mutex
