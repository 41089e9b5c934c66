//go:build linux

package delivery

import (
	"errors"
	"io"
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSendfileChunk keeps a single sendfile call below the kernel's 2 GiB cap.
const maxSendfileChunk = 1 << 30

// sendFile transfers size bytes of src to dst with sendfile(2), starting at
// offset 0. handled is false when dst cannot take sendfile at all and
// nothing was written, so the caller can fall back.
func sendFile(dst syscall.Conn, src *os.File, size int64) (written int64, handled bool, err error) {
	rc, err := dst.SyscallConn()
	if err != nil {
		return 0, false, nil
	}
	srcConn, err := src.SyscallConn()
	if err != nil {
		return 0, false, nil
	}

	var (
		offset   int64
		sendErr  error
		fallback bool
	)
	ctrlErr := srcConn.Control(func(srcFd uintptr) {
		err = rc.Write(func(dstFd uintptr) bool {
			for written < size {
				chunk := size - written
				if chunk > maxSendfileChunk {
					chunk = maxSendfileChunk
				}
				n, e := unix.Sendfile(int(dstFd), int(srcFd), &offset, int(chunk))
				if n > 0 {
					written += int64(n)
				}
				switch {
				case e == unix.EINTR:
					continue
				case e == unix.EAGAIN:
					// wait until the socket is writable again
					return false
				case e == unix.EINVAL || e == unix.ENOSYS || e == unix.EOPNOTSUPP:
					if written == 0 {
						fallback = true
					} else {
						sendErr = e
					}
					return true
				case e != nil:
					sendErr = e
					return true
				case n == 0:
					sendErr = io.ErrUnexpectedEOF
					return true
				}
			}
			return true
		})
	})
	runtime.KeepAlive(src)

	if fallback {
		return 0, false, nil
	}
	if ctrlErr != nil {
		return written, true, ctrlErr
	}
	if err == nil {
		err = sendErr
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return written, true, err
	}
	if err != nil {
		return written, true, os.NewSyscallError("sendfile", err)
	}
	return written, true, nil
}
