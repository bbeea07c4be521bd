package domain

import "errors"

// Error kinds. Exchange operations fail with an *Error whose Kind is one of
// these; errors.Is(err, ErrState) matches any state error regardless of reason.
var (
	ErrPermissionDenied      = errors.New("permission denied")
	ErrNotFound              = errors.New("not found")
	ErrState                 = errors.New("invalid state")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrReentrant             = errors.New("reentrant call")
)

// Infrastructure errors.
var (
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrJournalCorrupt = errors.New("journal record corrupt")
)

// Error is a failed precondition of an exchange operation. Reason is a short
// machine-checkable string naming the precondition, e.g. "offer is expired".
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string { return e.Kind.Error() + ": " + e.Reason }

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap returns the kind so errors.Is works through wrapping.
func (e *Error) Unwrap() error { return e.Kind }

func newErr(kind error, reason string) *Error { return &Error{Kind: kind, Reason: reason} }

// Constructors for each kind.
func PermissionDenied(reason string) *Error      { return newErr(ErrPermissionDenied, reason) }
func NotFound(reason string) *Error              { return newErr(ErrNotFound, reason) }
func StateError(reason string) *Error            { return newErr(ErrState, reason) }
func InvalidInput(reason string) *Error          { return newErr(ErrInvalidInput, reason) }
func InsufficientFunds(reason string) *Error     { return newErr(ErrInsufficientFunds, reason) }
func InsufficientAllowance(reason string) *Error { return newErr(ErrInsufficientAllowance, reason) }

// Reason extracts the reason string from an exchange error, or "" when err is
// not an *Error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
