package script

import "errors"

// ErrorKind classifies a pipeline fault.
type ErrorKind int

const (
	// ErrorNone means no fault since the last ClearErrors.
	ErrorNone ErrorKind = iota
	// ErrorCompilation means the generated unit failed to produce a loadable
	// artifact. Compilation faults are always recorded and never returned as
	// errors, whatever the throw policy says.
	ErrorCompilation
	// ErrorRuntime means activation or invocation of user code faulted.
	ErrorRuntime
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorCompilation:
		return "compilation"
	case ErrorRuntime:
		return "runtime"
	default:
		return "none"
	}
}

// ErrorRecord is the classified fault state of an ExecutionContext. Exactly
// one record is live per context; it is cleared at the start of every public
// engine call, so callers not using ThrowOnError inspect it after each call.
type ErrorRecord struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// HasError reports whether a fault is recorded.
func (e *ErrorRecord) HasError() bool { return e.Kind != ErrorNone }

// innermost walks a wrapped error chain to its root cause. Runtime faults
// are classified on the innermost error so callers see the user code's own
// failure, not the layers of dispatch around it.
func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
