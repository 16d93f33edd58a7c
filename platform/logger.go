package platform

import (
	"sync/atomic"

	"github.com/go-logr/logr"
)

var defaultLog atomic.Pointer[logr.Logger]

// SetLogger sets the logger for reports the strategies emit on their own,
// such as the deadlock detector's.
func SetLogger(l logr.Logger) { defaultLog.Store(&l) }

func logger() logr.Logger {
	if l := defaultLog.Load(); l != nil {
		return *l
	}
	return logr.Discard()
}
