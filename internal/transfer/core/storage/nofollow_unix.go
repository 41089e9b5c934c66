//go:build unix

package storage

import "golang.org/x/sys/unix"

// openNoFollow makes the final open fail if a symlink was swapped in after
// Resolve.
const openNoFollow = unix.O_NOFOLLOW
