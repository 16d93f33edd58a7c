//go:build kthread_nothreads

package platform

// Default returns the strategy selected for this build.
func Default() Strategy { return NoThreads() }
