package buffer

import (
	"fmt"
	"io"
)

// maxEmptyReads bounds how many (0, nil) reads Fill tolerates before giving
// up, mirroring bufio.Reader.
const maxEmptyReads = 100

// Window is a fixed-capacity sliding byte window with two cursors: head marks
// the first unconsumed byte and tail the end of the filled region. Refills
// compact the unconsumed bytes to the front before reading more, so the
// backing array is allocated exactly once.
//
// A Window is not safe for concurrent use.
type Window struct {
	buf  []byte
	head int
	tail int
	peak int
}

// NewWindow allocates a window with the given capacity.
func NewWindow(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Window{buf: make([]byte, capacity)}, nil
}

// Bytes returns the unconsumed bytes. The slice aliases the window and is only
// valid until the next Fill or Consume.
func (w *Window) Bytes() []byte {
	return w.buf[w.head:w.tail]
}

// Len returns the number of unconsumed bytes.
func (w *Window) Len() int {
	return w.tail - w.head
}

// Cap returns the fixed capacity of the window.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Peak returns the highest number of unconsumed bytes ever held.
func (w *Window) Peak() int {
	return w.peak
}

// Consume marks n bytes as consumed. It panics if n is negative or larger
// than Len, like bytes.Buffer.Truncate.
func (w *Window) Consume(n int) {
	if n < 0 || n > w.Len() {
		panic(fmt.Sprintf("buffer: consume %d of %d", n, w.Len()))
	}
	w.head += n
	if w.head == w.tail {
		w.head, w.tail = 0, 0
	}
}

// Fill performs a single read from r into the free space of the window and
// returns the number of bytes added. Unconsumed bytes are preserved and stay
// in front of the new ones. io.EOF is returned only together with n == 0
// when the reader reports end of stream without new data.
func (w *Window) Fill(r io.Reader) (int, error) {
	if w.tail == len(w.buf) && w.head > 0 {
		copy(w.buf, w.buf[w.head:w.tail])
		w.tail -= w.head
		w.head = 0
	}
	if w.tail == len(w.buf) {
		return 0, ErrBufferFull
	}

	for i := 0; i < maxEmptyReads; i++ {
		n, err := r.Read(w.buf[w.tail:])
		if n < 0 || n > len(w.buf)-w.tail {
			return 0, fmt.Errorf("%w: reader returned %d", ErrInvalidOffset, n)
		}
		w.tail += n
		if l := w.Len(); l > w.peak {
			w.peak = l
		}
		if n > 0 {
			// Data first; a trailing io.EOF resurfaces on the next call.
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, io.ErrNoProgress
}

// Reset discards all buffered bytes. The peak is kept.
func (w *Window) Reset() {
	w.head, w.tail = 0, 0
}
