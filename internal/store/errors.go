package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the addressed row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// OpError records a failed store operation. Batch jobs propagate it to the
// trigger; per-candidate jobs attach it to the failing candidate.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// opErr wraps err as an *OpError unless it is nil.
func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// WrapOp is the exported form of opErr for store implementations living in
// other packages.
func WrapOp(op string, err error) error {
	return opErr(op, err)
}
