package shared

import "errors"

var (
	// ErrAllocation is returned when a control block cannot be allocated.
	// The caller keeps ownership of the pointer it passed in.
	ErrAllocation = errors.New("shared: control block allocation failed")
	// ErrNullDereference is wrapped by the NullDereferenceError panic value.
	ErrNullDereference = errors.New("shared: dereference of empty handle")
)

// NullDereferenceError is the panic value of Deref on an empty handle.
// It is a contract violation, not a recoverable runtime condition.
type NullDereferenceError struct {
	Type string
}

func (e NullDereferenceError) Error() string {
	return ErrNullDereference.Error() + " of " + e.Type
}

func (e NullDereferenceError) Unwrap() error {
	return ErrNullDereference
}
