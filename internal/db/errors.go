package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when the referenced row does not exist.
var ErrNotFound = errors.New("not found")

// PoolFatalError is raised when an idle pooled connection fails, e.g. the
// backend went away or the network partitioned. The pool is not repaired;
// whoever receives it decides how to shut down.
type PoolFatalError struct {
	Err error
}

func (e *PoolFatalError) Error() string {
	return fmt.Sprintf("unexpected error on idle connection: %v", e.Err)
}

func (e *PoolFatalError) Unwrap() error { return e.Err }

// IsPoolFatal reports whether err is or wraps a *PoolFatalError.
func IsPoolFatal(err error) bool {
	var pf *PoolFatalError
	return errors.As(err, &pf)
}
