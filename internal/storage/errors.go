// Package storage holds the error taxonomy shared by the Postgres-backed stores.
package storage

import (
	"errors"
	"fmt"
)

// ErrStorage marks every failure of the underlying store. Callers match it with errors.Is.
var ErrStorage = errors.New("storage: operation failed")

// Error wraps a driver error with the operation and table involved.
type Error struct {
	Op    string // e.g. "append", "count", "update"
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// Wrap returns nil for a nil err, otherwise a *Error.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Table: table, Err: err}
}

// IsStorage reports whether err originates from the store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
