package kthread

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Location identifies a call site. The zero Location means "not recorded",
// which is all release builds ever produce.
type Location struct {
	File string
	Line int
	Func string
}

func (l Location) Valid() bool { return l.File != `` }

func (l Location) String() string {
	if !l.Valid() {
		return `unknown`
	}
	return fmt.Sprintf(`%s:%d`, filepath.Base(l.File), l.Line)
}

// here returns the location skip frames above its caller, or the zero
// Location when debug instrumentation is compiled out.
func here(skip int) Location {
	if !debugEnabled {
		return Location{}
	}
	return caller(skip + 1)
}

func caller(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	l := Location{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		l.Func = fn.Name()
	}
	return l
}
