package utils

import "fmt"

// Hard error taxonomy. These abort an operation with no partial writes and
// are surfaced verbatim to the caller. Soft findings (match exceptions,
// import line errors, over-delivery warnings) are response data, never
// returned as Go errors.

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError reports an operation attempted on an entity in the wrong
// lifecycle state (e.g. approving a non-review import run).
type InvalidStateError struct {
	Entity   string
	Current  string
	Expected string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is %s, expected %s", e.Entity, e.Current, e.Expected)
}

// VendorMismatchError reports a delivery or invoice whose vendor does not
// agree with the referenced purchase order's vendor.
type VendorMismatchError struct {
	VendorId   int
	PoVendorId int
}

func (e *VendorMismatchError) Error() string {
	return fmt.Sprintf("vendor %d does not match purchase order vendor %d", e.VendorId, e.PoVendorId)
}

// NotFoundError reports an absent referenced entity.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "record not found"
	}
	return e.Resource + " not found"
}

// ErrorRecordNotFound is the generic not-found sentinel used by the model
// fetch helpers. Compare with errors.As against *NotFoundError.
var ErrorRecordNotFound = &NotFoundError{}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
