//go:build !linux

package delivery

import (
	"os"
	"syscall"
)

func sendFile(dst syscall.Conn, src *os.File, size int64) (int64, bool, error) {
	return 0, false, nil
}
