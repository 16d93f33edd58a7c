//go:build !kthread_debug

package kthread

// DebugEnabled is true when built with the kthread_debug tag. Debug builds
// record call-site locations, enforce AssertLocked and AssertUnlocked, and
// panic on contract violations instead of returning them.
const DebugEnabled = false

const debugEnabled = DebugEnabled
