package model

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors below unwrap to one of these so callers can
// branch with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrEntityLocked          = errors.New("entity locked")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInventoryReturnFailed = errors.New("inventory return failed")
	ErrValidation            = errors.New("validation failed")
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports a status change that the entity's table does not allow.
type TransitionError struct {
	Entity    string
	Current   string
	Requested string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition from %q to %q", e.Entity, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InventoryError reports an allocation that exceeds the available quantity.
type InventoryError struct {
	PurchaseID int64
	Required   int
	Available  int
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("insufficient equipment available: required %d, available %d", e.Required, e.Available)
}

func (e *InventoryError) Unwrap() error { return ErrInsufficientInventory }

// LockedError reports an edit or delete of a record whose status forbids it.
type LockedError struct {
	Entity string
	Status string
	Reason string
}

func (e *LockedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s is locked: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("cannot modify %s %s", e.Status, e.Entity)
}

func (e *LockedError) Unwrap() error { return ErrEntityLocked }

// PermissionError reports a missing permission. Permission holds the token checked.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// ReturnError describes an equipment return that could not be persisted.
type ReturnError struct {
	AssignmentID int64
	PurchaseID   int64
	Quantity     int
	Err          error
}

func (e *ReturnError) Error() string {
	return fmt.Sprintf("returning %d units of purchase %d for assignment %d: %v",
		e.Quantity, e.PurchaseID, e.AssignmentID, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *ReturnError) Unwrap() []error { return []error{ErrInventoryReturnFailed, e.Err} }

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
