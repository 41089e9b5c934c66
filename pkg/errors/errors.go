package errors

import "errors"

var (
	// ErrMalformedRequest covers a missing or invalid boundary, a body that
	// never contains the first boundary and part headers that are not valid.
	ErrMalformedRequest = errors.New("malformed multipart request")

	// ErrIncompleteStream means the body ended before the closing boundary.
	ErrIncompleteStream = errors.New("incomplete multipart stream")

	ErrFilesystem      = errors.New("filesystem failure")
	ErrPathTraversal   = errors.New("path escapes storage root")
	ErrProbeFailure    = errors.New("content type probe failed")
	ErrFileNotFound    = errors.New("file not found")
	ErrServerBusy      = errors.New("server busy")
	ErrStreamCancelled = errors.New("stream cancelled by client")
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrIncompleteStream) ||
		errors.Is(err, ErrPathTraversal)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

func IsStorageError(err error) bool {
	return errors.Is(err, ErrFilesystem)
}
