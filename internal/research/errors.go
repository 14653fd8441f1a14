package research

import "errors"

// ErrEmptyInput is returned for a query that is blank after trimming.
var ErrEmptyInput = errors.New("empty input")

// TransportError wraps a failure of the agent runtime.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "agent runtime: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
