package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes ledger errors.
type Code string

const (
	// ErrCodeInvalidAddress indicates a zero or self-referential address where disallowed.
	ErrCodeInvalidAddress Code = "INVALID_ADDRESS"

	// ErrCodeInsufficientBalance indicates the debited account holds less than required.
	ErrCodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"

	// ErrCodeUnauthorized indicates the caller lacks the required role.
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

	// ErrCodeAlreadyInitialized indicates a one-time setup step was attempted twice
	// or from the wrong phase.
	ErrCodeAlreadyInitialized Code = "ALREADY_INITIALIZED"

	// ErrCodeInvalidParameter indicates an out-of-range argument.
	ErrCodeInvalidParameter Code = "INVALID_PARAMETER"

	// ErrCodePoolInsufficient indicates the vesting pool cannot cover a payout.
	ErrCodePoolInsufficient Code = "POOL_INSUFFICIENT"

	// ErrCodeNotApprovedCaller indicates the caller is not a registered platform or NFT contract.
	ErrCodeNotApprovedCaller Code = "NOT_APPROVED_CALLER"

	// ErrCodeInsufficientAllowance indicates transferFrom exceeded the approved allowance.
	ErrCodeInsufficientAllowance Code = "INSUFFICIENT_ALLOWANCE"

	// ErrCodeNotInitialized indicates the ledger has not been configured yet.
	ErrCodeNotInitialized Code = "NOT_INITIALIZED"

	// ErrCodePaused indicates the operation is halted by the pause gate.
	ErrCodePaused Code = "PAUSED"

	// ErrCodeScheduleNotFound indicates no initialized schedule exists at (beneficiary, index).
	ErrCodeScheduleNotFound Code = "SCHEDULE_NOT_FOUND"

	// ErrCodeNothingToRelease indicates a claim found zero releasable tokens.
	ErrCodeNothingToRelease Code = "NOTHING_TO_RELEASE"
)

// Error is a ledger rejection. Any Error aborts the whole entry point; the
// host discards every mutation made before it was returned.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidAddress        = &Error{Code: ErrCodeInvalidAddress}
	ErrInsufficientBalance   = &Error{Code: ErrCodeInsufficientBalance}
	ErrUnauthorized          = &Error{Code: ErrCodeUnauthorized}
	ErrAlreadyInitialized    = &Error{Code: ErrCodeAlreadyInitialized}
	ErrInvalidParameter      = &Error{Code: ErrCodeInvalidParameter}
	ErrPoolInsufficient      = &Error{Code: ErrCodePoolInsufficient}
	ErrNotApprovedCaller     = &Error{Code: ErrCodeNotApprovedCaller}
	ErrInsufficientAllowance = &Error{Code: ErrCodeInsufficientAllowance}
	ErrNotInitialized        = &Error{Code: ErrCodeNotInitialized}
	ErrPaused                = &Error{Code: ErrCodePaused}
	ErrScheduleNotFound      = &Error{Code: ErrCodeScheduleNotFound}
	ErrNothingToRelease      = &Error{Code: ErrCodeNothingToRelease}
)

// CodeOf extracts the error code, or "" if err is not a ledger Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
