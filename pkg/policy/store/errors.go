package store

import "fmt"

// NotFoundError reports an operation against a policy ID that is not in
// the store.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy %q not found", e.ID)
}

// ConflictError reports an attempt to create a policy whose ID is already
// taken.
type ConflictError struct {
	ID string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy %q already exists", e.ID)
}
