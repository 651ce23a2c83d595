package tdsim

import (
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// ErrUnknownMessageType is the invariant-violation diagnostic required by
// the error handling design: an unrecognized message type arriving at the
// application layer is fatal to the node that received it. The driver
// halts that node's further participation rather than crashing the whole
// run; callers that need the old "halt everything" behavior can check for
// this sentinel with errors.Is and stop the driver themselves.
var ErrUnknownMessageType = errors.New("tdsim: unknown message type")

// FatalNodeError wraps ErrUnknownMessageType with the offending node and
// message so a log line or a CLI exit code can report exactly what
// happened.
type FatalNodeError struct {
	Node NodeID
	Msg  Message
	err  error
}

func (e *FatalNodeError) Error() string {
	return fmt.Sprintf("node %d: %v: %s", e.Node, e.err, e.Msg)
}

func (e *FatalNodeError) Unwrap() error {
	return e.err
}

func newFatalNodeError(node NodeID, msg Message) *FatalNodeError {
	return &FatalNodeError{Node: node, Msg: msg, err: ErrUnknownMessageType}
}

// validationErrors accumulates every configuration problem found rather
// than bailing out on the first, so a user fixes their config file in one
// pass instead of one error at a time.
type validationErrors struct {
	errs *multierror.Error
}

func (v *validationErrors) add(format string, args ...interface{}) {
	v.errs = multierror.Append(v.errs, fmt.Errorf(format, args...))
}

func (v *validationErrors) err() error {
	return v.errs.ErrorOrNil()
}
