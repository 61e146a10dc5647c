package vm

import (
	"errors"
	"fmt"
)

// Outcome errors returned by the core. Java-level faults are objects held in
// the Env's pending slot; these sentinels describe what happened to the Go
// caller and are matched with errors.Is.
var (
	// ErrOutOfMemory reports an allocation failure. It is distinct from an
	// OutOfMemoryError object because building that object may be impossible.
	ErrOutOfMemory = errors.New("vm: out of memory")

	ErrClassNotFound           = errors.New("vm: class not found")
	ErrNoClassDefFound         = errors.New("vm: no class definition found")
	ErrClassCircularity        = errors.New("vm: class circularity")
	ErrClassFormat             = errors.New("vm: class format error")
	ErrAbstractLinkage         = errors.New("vm: abstract method linkage")
	ErrDuplicateClass          = errors.New("vm: duplicate class definition")
	ErrIncompatibleClassChange = errors.New("vm: incompatible class change")
	ErrVerify                  = errors.New("vm: verification failed")
	ErrProhibitedPackage       = errors.New("vm: prohibited package name")

	// ErrExceptionPending means a Java-level exception is pending on the Env.
	ErrExceptionPending = errors.New("vm: exception pending")

	// ErrInvalidRequest is a local usage error: wrong frame kind, missing
	// arguments, raising while another exception is pending, and so on.
	ErrInvalidRequest = errors.New("vm: invalid request")

	ErrIllegalMonitorState = errors.New("vm: current thread is not the monitor owner")
	ErrNoEnv               = errors.New("vm: goroutine is not attached to an env")
)

// MissingClassError reports a superclass or interface that could not be
// found while another class was being defined. It matches
// ErrNoClassDefFound, not ErrClassNotFound, so a loader does not retry the
// dependent class elsewhere.
type MissingClassError struct {
	Name      string // the class that could not be found
	Dependent string // the class being defined
}

func (e *MissingClassError) Error() string {
	return fmt.Sprintf("%v: %s (needed by %s)", ErrNoClassDefFound, e.Name, e.Dependent)
}

func (e *MissingClassError) Unwrap() error { return ErrNoClassDefFound }
