package buffer

import "errors"

// Common window errors so callers can classify refill failures without
// inspecting the window internals.
var (
	// ErrBufferFull indicates that the window has no free space left even
	// after compacting consumed bytes away. The caller must consume before
	// refilling again.
	ErrBufferFull = errors.New("buffer is full")

	// ErrInvalidCapacity indicates that the requested capacity is invalid.
	ErrInvalidCapacity = errors.New("invalid buffer capacity")

	// ErrInvalidOffset indicates a reader reported an impossible byte count.
	ErrInvalidOffset = errors.New("invalid buffer offset")
)

// IsCapacityError checks if an error indicates the window ran out of room.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrBufferFull)
}

// IsValidationError checks if an error indicates invalid input parameters.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidOffset)
}
