package delivery

import (
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
	"syscall"
	"time"

	"filetransfer/internal/transfer/core/storage"
	"filetransfer/pkg/logger"
)

// copyBufferSize is the chunk size of the fallback copy path.
const copyBufferSize = 64 * 1024

// ContentTypes resolves the content type of a stored file.
type ContentTypes interface {
	Lookup(path string) string
}

// Deliverer serves stored files.
type Deliverer struct {
	root     *storage.Root
	types    ContentTypes
	zeroCopy bool
	logger   *logger.Logger
}

// NewDeliverer creates a deliverer. With zeroCopy false, WriteTo always
// copies through a user-space buffer.
func NewDeliverer(root *storage.Root, types ContentTypes, zeroCopy bool, log *logger.Logger) *Deliverer {
	return &Deliverer{
		root:     root,
		types:    types,
		zeroCopy: zeroCopy,
		logger:   log.WithField("component", "delivery"),
	}
}

// Delivery is one opened file ready to be sent. The caller must Close it.
type Delivery struct {
	file         *os.File
	Name         string
	Path         string
	Size         int64
	ModTime      time.Time
	ContentType  string
	zeroCopy     bool
	logger       *logger.Logger
	usedSendfile bool
}

// Open validates name against the storage root and opens the file.
func (d *Deliverer) Open(name string) (*Delivery, error) {
	f, info, err := d.root.Open(name)
	if err != nil {
		return nil, err
	}

	return &Delivery{
		file:        f,
		Name:        info.Name(),
		Path:        f.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: d.types.Lookup(f.Name()),
		zeroCopy:    d.zeroCopy,
		logger:      d.logger.WithField("file", info.Name()),
	}, nil
}

// ContentDisposition returns an attachment disposition with the file name.
// Non-ASCII names get an RFC 5987 filename* parameter.
func (dl *Delivery) ContentDisposition() string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}); v != "" {
		return v
	}
	return `attachment; filename="` + strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, dl.Name) + `"`
}

// WriteTo sends exactly Size bytes to w. Sockets exposing their descriptor
// get sendfile(2); writers implementing io.ReaderFrom get the file itself
// so they can pick their own zero-copy path (net/http does); everything
// else is copied through a fixed buffer.
func (dl *Delivery) WriteTo(w io.Writer) (int64, error) {
	var (
		n   int64
		err error
	)

	switch {
	case !dl.zeroCopy:
		n, err = io.CopyBuffer(writerOnly{w}, io.LimitReader(dl.file, dl.Size), make([]byte, copyBufferSize))
	default:
		var handled bool
		if sc, ok := w.(syscall.Conn); ok {
			n, handled, err = sendFile(sc, dl.file, dl.Size)
			dl.usedSendfile = handled
		}
		if handled {
			break
		}
		if rf, ok := w.(io.ReaderFrom); ok {
			n, err = rf.ReadFrom(&io.LimitedReader{R: dl.file, N: dl.Size})
		} else {
			n, err = io.CopyBuffer(w, io.LimitReader(dl.file, dl.Size), make([]byte, copyBufferSize))
		}
	}

	if err == nil && n < dl.Size {
		err = fmt.Errorf("short delivery of %s: %d of %d bytes: %w", dl.Name, n, dl.Size, io.ErrUnexpectedEOF)
	}
	if err != nil {
		dl.logger.Warn("delivery failed", "sent", n, "size", dl.Size, "error", err)
	}
	return n, err
}

// UsedSendfile reports whether the last WriteTo went through sendfile(2).
func (dl *Delivery) UsedSendfile() bool {
	return dl.usedSendfile
}

func (dl *Delivery) Close() error {
	return dl.file.Close()
}

// writerOnly hides any ReaderFrom implementation of the wrapped writer.
type writerOnly struct {
	io.Writer
}
