package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a host-level failure: the call never reached the ledger,
// or replay found the log and the code disagreeing. Ledger rejections are
// *ledger.Error instead.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Op is the op name involved, if any.
	Op string

	// Seq is the call seq involved (replay), if any.
	Seq int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownOp indicates no handler is registered for the op.
	ErrCodeUnknownOp RuntimeErrorCode = "UNKNOWN_OP"

	// ErrCodeWrongMode indicates a query op sent to Execute or a mutating op
	// sent to Query.
	ErrCodeWrongMode RuntimeErrorCode = "WRONG_MODE"

	// ErrCodeReplayDiverged indicates replay produced a different outcome or
	// state than the log records.
	ErrCodeReplayDiverged RuntimeErrorCode = "REPLAY_DIVERGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (seq=%d, op=%s)", e.Code, e.Message, e.Seq, e.Op)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownOp reports whether err is an unknown-op error.
// Uses errors.As to handle wrapped errors.
func IsUnknownOp(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownOp
	}
	return false
}

// NewUnknownOpError creates a RuntimeError for an unregistered op.
func NewUnknownOpError(op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownOp,
		Message: "no such operation",
		Op:      op,
	}
}

func newWrongModeError(op string, query bool) *RuntimeError {
	msg := "op mutates state; use invoke"
	if query {
		msg = "op is read-only; use query"
	}
	return &RuntimeError{Code: ErrCodeWrongMode, Message: msg, Op: op}
}
