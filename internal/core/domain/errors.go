package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrTransient         = errors.New("transient failure")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InsufficientStockError matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// StatusConflict reports a conditional status write whose expected status no longer holds.
func StatusConflict(id string, current, expected OrderStatus) error {
	return fmt.Errorf("%w: order %q is %s, expected %s", ErrInvalidTransition, id, current, expected)
}

// Transient marks an infrastructure failure that the caller or the queue may retry.
func Transient(op string, err error) error {
	if errors.Is(err, ErrTransient) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
