package kthread

import "github.com/violin0622/kthread/platform"

// Strategy and Handle are the native facility a Mutex is built on. See the
// platform package for the available variants.
type (
	Strategy = platform.Strategy
	Handle   = platform.Handle
)

// defaultStrategy is fixed per build; tests swap it through export_test.go.
var defaultStrategy = platform.Default()

// DefaultStrategy returns the strategy every Mutex in this build uses.
func DefaultStrategy() Strategy { return defaultStrategy }

// ThreadingAvailable reports whether real blocking threads are usable. It
// is probed once per process.
func ThreadingAvailable() bool { return platform.ThreadingAvailable() }
