//go:build !windows && !kthread_nothreads && !kthread_probe

package platform

// Default returns the strategy selected for this build.
func Default() Strategy { return Native() }
