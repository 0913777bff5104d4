package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOutOfStock         = errors.New("out of stock")
	ErrStockLimitExceeded = errors.New("stock limit exceeded")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCartNotEmpty       = errors.New("cart is not empty; suspend or clear it first")
	ErrShiftAlreadyOpen   = errors.New("shift already open")
	ErrNoOpenShift        = errors.New("no open shift")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("permission denied")
)

// OpError reports which operation failed and why. Err is one of the
// sentinels above, possibly wrapping a lower-level cause.
type OpError struct {
	Action string
	Err    error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Action + ": failed"
	}
	return e.Action + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Fail wraps err for action. Errors that are not part of the taxonomy are
// treated as store failures.
func Fail(action string, err error) error {
	if err == nil {
		return nil
	}
	var op *OpError
	if errors.As(err, &op) {
		return &OpError{Action: action, Err: op.Err}
	}
	if !IsKnown(err) {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &OpError{Action: action, Err: err}
}

// IsKnown reports whether err belongs to the error taxonomy.
func IsKnown(err error) bool {
	for _, known := range []error{
		ErrInvalidAmount,
		ErrInvalidInput,
		ErrOutOfStock,
		ErrStockLimitExceeded,
		ErrEmptyCart,
		ErrCartNotEmpty,
		ErrShiftAlreadyOpen,
		ErrNoOpenShift,
		ErrNotFound,
		ErrDuplicateEmail,
		ErrDuplicateKey,
		ErrPersistence,
		ErrInvalidCredentials,
		ErrForbidden,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
