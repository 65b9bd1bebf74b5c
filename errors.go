package stepcompress

import (
	"fmt"

	"github.com/pkg/errors"
)

// errQueueAllocFailed is returned by stepQueue when growth would exceed
// maxQueueAlloc; StepCompress wraps it with oid context as an
// AllocationFailureError before returning it to the caller.
var errQueueAllocFailed = errors.New("stepcompress: step queue allocation exceeded safety cap")

// InvalidMoveError reports a StepMove that failed verification
// (§4.3.4): this is a fatal internal error — it indicates a bug in the
// compressor, not bad input, and the caller is expected to abort the
// motion in progress.
type InvalidMoveError struct {
	OID   uint32
	Move  StepMove
	Step  int // 1-indexed offending step, or -1 if the move's shape itself is invalid
	Cause string
}

func (e *InvalidMoveError) Error() string {
	return fmt.Sprintf("stepcompress o=%d i=%d c=%d a=%d: %s (step %d)",
		e.OID, e.Move.Interval, e.Move.Count, e.Move.Add, e.Cause, e.Step)
}

func newInvalidMoveError(oid uint32, move StepMove, step int, cause string) error {
	return errors.WithStack(&InvalidMoveError{OID: oid, Move: move, Step: step, Cause: cause})
}

// AllocationFailureError reports that growing a stepper's step queue
// or history log failed. Fatal.
type AllocationFailureError struct {
	OID   uint32
	Cause error
}

func (e *AllocationFailureError) Error() string {
	return fmt.Sprintf("stepcompress o=%d: allocation failure: %v", e.OID, e.Cause)
}

func (e *AllocationFailureError) Unwrap() error { return e.Cause }

func newAllocationFailureError(oid uint32, cause error) error {
	return errors.WithStack(&AllocationFailureError{OID: oid, Cause: cause})
}

// TransportError wraps a failure returned by Transport.SendBatch; the
// underlying error is kept unchanged as Cause.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stepcompress: transport send failed: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func newTransportError(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&TransportError{Cause: cause})
}
