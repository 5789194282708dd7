package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance: sell quantity exceeds the owner's gold balance
	ErrInsufficientBalance = errors.New("insufficient gold balance")

	// ErrInvalidOrderState: cancel (or fill) requested on an order that is not open
	ErrInvalidOrderState = errors.New("order is not open")

	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidOrder: input rejected before reaching the store
	ErrInvalidOrder = errors.New("invalid order")

	// ErrConflict: a versioned record changed between read and commit
	ErrConflict = errors.New("concurrent modification")

	// ErrPersistence matches every *PersistenceError
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError wraps an unexpected storage failure inside an atomic unit.
// The whole unit is discarded when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it is nil or already a persistence error
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a caller error that leaves state untouched
func IsValidation(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidOrderState) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvalidOrder)
}
