package filename

import (
	"fmt"
	"strings"

	_errors "filetransfer/pkg/errors"
)

// Sanitize reduces a client supplied name to its final path segment. Both
// '/' and '\' separate segments. Names whose leaf is empty, "." or "..", or
// that contain NUL, are rejected.
func Sanitize(name string) (string, error) {
	leaf := name
	if i := strings.LastIndexAny(leaf, `/\`); i >= 0 {
		leaf = leaf[i+1:]
	}
	leaf = strings.TrimSpace(leaf)

	switch {
	case leaf == "", leaf == ".", leaf == "..":
		return "", fmt.Errorf("%w: %q has no usable file name", _errors.ErrPathTraversal, name)
	case strings.ContainsRune(leaf, 0):
		return "", fmt.Errorf("%w: %q contains NUL", _errors.ErrPathTraversal, name)
	}
	return leaf, nil
}
