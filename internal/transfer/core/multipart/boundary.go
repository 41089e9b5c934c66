package multipart

import (
	"fmt"
	"mime"
	"strings"

	_errors "filetransfer/pkg/errors"
)

// maxBoundaryLen is the RFC 2046 limit on the boundary parameter.
const maxBoundaryLen = 70

var (
	crlf       = []byte("\r\n")
	dashDash   = []byte("--")
	headerTerm = []byte("\r\n\r\n")
)

// ParseBoundary validates a request Content-Type and returns the boundary
// token used for matching: "--" followed by the declared boundary.
func ParseBoundary(contentType string) ([]byte, error) {
	if strings.TrimSpace(contentType) == "" {
		return nil, fmt.Errorf("%w: missing content type", _errors.ErrMalformedRequest)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", _errors.ErrMalformedRequest, err)
	}
	if mediaType != "multipart/form-data" {
		return nil, fmt.Errorf("%w: unsupported content type %q", _errors.ErrMalformedRequest, mediaType)
	}

	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, fmt.Errorf("%w: missing boundary parameter", _errors.ErrMalformedRequest)
	}
	if len(boundary) > maxBoundaryLen {
		return nil, fmt.Errorf("%w: boundary longer than %d bytes", _errors.ErrMalformedRequest, maxBoundaryLen)
	}
	if strings.ContainsAny(boundary, "\r\n") {
		return nil, fmt.Errorf("%w: boundary contains line breaks", _errors.ErrMalformedRequest)
	}

	return append([]byte("--"), boundary...), nil
}
