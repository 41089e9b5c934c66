package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filetransfer/pkg/buffer"
	_errors "filetransfer/pkg/errors"
)

// splitHeaderBlock looks for the end of a header block at the start of buf.
// It returns the block without its terminating blank line and the number of
// bytes to consume, or ok=false if more input is needed. A block that starts
// with CRLF is empty.
func splitHeaderBlock(buf []byte) (block []byte, consumed int, ok bool) {
	if bytes.HasPrefix(buf, crlf) {
		return nil, len(crlf), true
	}
	if i := bytes.Index(buf, headerTerm); i >= 0 {
		return buf[:i], i + len(headerTerm), true
	}
	return nil, 0, false
}

type boundaryKind int

const (
	needMore boundaryKind = iota
	continuation
	terminal
	invalid
)

// classifyBoundaryLine inspects the bytes right after a boundary token. "--"
// ends the body; otherwise optional transport padding (spaces, tabs) and
// CRLF announce another part. It returns the kind and how many bytes the
// suffix occupies.
func classifyBoundaryLine(buf []byte) (boundaryKind, int) {
	if len(buf) == 0 {
		return needMore, 0
	}
	if buf[0] == '-' {
		if len(buf) < 2 {
			return needMore, 0
		}
		if buf[1] == '-' {
			return terminal, 2
		}
		return invalid, 0
	}

	i := 0
	for i < len(buf) && (buf[i] == ' ' || buf[i] == '\t') {
		i++
	}
	switch {
	case i == len(buf):
		return needMore, i
	case buf[i] != '\r':
		return invalid, 0
	case i+1 == len(buf):
		return needMore, i
	case buf[i+1] != '\n':
		return invalid, 0
	}
	return continuation, i + 2
}

// readBoundaryLine consumes the suffix of the boundary just matched and
// reports whether it was the terminal one.
func (c *Controller) readBoundaryLine(ctx context.Context) (bool, error) {
	for {
		kind, n := classifyBoundaryLine(c.win.Bytes())
		switch kind {
		case terminal:
			c.win.Consume(n)
			return true, nil
		case continuation:
			c.win.Consume(n)
			return false, nil
		case invalid:
			return false, fmt.Errorf("%w: garbage after boundary", _errors.ErrMalformedRequest)
		}

		// padding seen so far can go, it carries no data
		c.win.Consume(n)
		if err := c.fill(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return false, fmt.Errorf("%w: stream ended after boundary", _errors.ErrIncompleteStream)
			}
			return false, err
		}
	}
}

// readHeaders accumulates one header block. The block must fit in the
// window; the returned slice is a copy.
func (c *Controller) readHeaders(ctx context.Context) ([]byte, error) {
	for {
		if block, n, ok := splitHeaderBlock(c.win.Bytes()); ok {
			block = bytes.Clone(block)
			c.win.Consume(n)
			return block, nil
		}

		if err := c.fill(ctx); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil, fmt.Errorf("%w: stream ended inside part headers", _errors.ErrIncompleteStream)
			case buffer.IsCapacityError(err):
				return nil, fmt.Errorf("%w: part headers exceed %d bytes", _errors.ErrMalformedRequest, c.win.Cap())
			}
			return nil, err
		}
	}
}
