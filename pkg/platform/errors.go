package platform

import (
	"errors"
	"fmt"
	"io/fs"
)

// PlatformError records which filesystem operation failed and on what path.
// The underlying error stays reachable through errors.Is / errors.As, so
// callers can still distinguish fs.ErrNotExist, fs.ErrPermission and
// syscall errors such as ENOSPC.
type PlatformError struct {
	Operation string
	Path      string
	Err       error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, unwrapPathError(e.Err))
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatformError wraps err for operation on path. A nil err stays nil.
func NewPlatformError(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PlatformError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// unwrapPathError drops the *fs.PathError layer for display, its op and path
// would repeat ours.
func unwrapPathError(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err
	}
	return err
}
