package dualstream

import "errors"

// Error kinds surfaced by the core. See spec §7.
var (
	ErrInvalidArg   = errors.New("dualstream: invalid argument")
	ErrNotPermitted = errors.New("dualstream: operation not permitted in current state")
	ErrOutOfMemory  = errors.New("dualstream: out of buffer memory")
	ErrCanceled     = errors.New("dualstream: dequeue canceled")
	ErrNotSupported = errors.New("dualstream: format or control not supported")
)

// ExtCtrlError reports a partial failure of a multi-control set
// operation: ErrorIdx controls were applied successfully before Err
// aborted the remainder.
type ExtCtrlError struct {
	ErrorIdx int
	Err      error
}

func (e *ExtCtrlError) Error() string {
	return e.Err.Error()
}

func (e *ExtCtrlError) Unwrap() error {
	return e.Err
}
