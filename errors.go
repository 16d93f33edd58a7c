package kthread

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// Error kinds. Every *Error matches exactly one of them with errors.Is.
var (
	ErrInit     = errors.New(`mutex init failed`)
	ErrDestroy  = errors.New(`mutex destroy failed`)
	ErrLock     = errors.New(`mutex lock failed`)
	ErrUnlock   = errors.New(`mutex unlock failed`)
	ErrAssert   = errors.New(`mutex assertion failed`)
	ErrOnce     = errors.New(`once failed`)
	ErrRegister = errors.New(`key register failed`)
	ErrSet      = errors.New(`key set failed`)
	ErrDelete   = errors.New(`key delete failed`)
)

// ErrLocked is the cause of a Destroy refused because the mutex is held.
// Unlike a contract violation it is always returned, even in debug builds,
// and the mutex is left untouched.
var ErrLocked = errors.New(`mutex is locked`)

// ErrContractViolation matches every *ContractViolation.
var ErrContractViolation = errors.New(`contract violation`)

// Error is returned by every fallible operation in this package. Err is a
// *ContractViolation, a *platform.Error, or ErrLocked.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string { return e.Op + `: ` + e.Err.Error() }

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// ContractViolation describes a call made in a state the operation does not
// allow. Site is where the offending call was made; Created and Last are the
// cell's creation and last-touch locations when known.
type ContractViolation struct {
	Op      string
	Name    string
	Msg     string
	Site    Location
	Created Location
	Last    Location
}

func (v *ContractViolation) Error() string {
	var b strings.Builder
	b.WriteString(`contract violation`)
	if v.Name != `` {
		fmt.Fprintf(&b, ` on %q`, v.Name)
	}
	b.WriteString(`: `)
	b.WriteString(v.Msg)
	if v.Site.Valid() {
		fmt.Fprintf(&b, ` at %s`, v.Site)
	}
	if v.Created.Valid() {
		fmt.Fprintf(&b, ` (created at %s`, v.Created)
		if v.Last.Valid() {
			fmt.Fprintf(&b, `, last touched at %s`, v.Last)
		}
		b.WriteString(`)`)
	}
	return b.String()
}

func (v *ContractViolation) Is(target error) bool { return target == ErrContractViolation }

// raise reports a contract violation. Debug builds log it and panic with
// err; release builds hand err back for the caller to return.
func raise(log logr.Logger, err *Error) error {
	if debugEnabled {
		log.Error(err, `Contract violation.`)
		panic(err)
	}
	return err
}
