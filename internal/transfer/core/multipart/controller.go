package multipart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"filetransfer/internal/transfer/core/filename"
	"filetransfer/internal/transfer/domain"
	"filetransfer/pkg/buffer"
	_errors "filetransfer/pkg/errors"
	"filetransfer/pkg/logger"
)

const (
	DefaultBufferSize       = 64 * 1024
	DefaultProgressInterval = 10 * 1024 * 1024
)

// Result summarizes one Run.
type Result struct {
	UploadID  string
	State     domain.State
	Parts     []domain.Part
	BytesRead int64
	// PeakBuffered is the most bytes the window ever held at once.
	PeakBuffered int
	BufferSize   int
	Duration     time.Duration
}

// Files returns the parts that were written to storage.
func (r *Result) Files() []domain.Part {
	var files []domain.Part
	for _, p := range r.Parts {
		if !p.Skipped {
			files = append(files, p)
		}
	}
	return files
}

// Controller drives one multipart body through its states:
// SeekingFirstBoundary, ReadingHeaders, StreamingPayload and finally Done
// or Aborted. It owns a single fixed-size window for the whole body.
type Controller struct {
	src      io.Reader
	token    *Matcher
	delim    *Matcher
	win      *buffer.Window
	store    domain.PartStore
	decoder  filename.Decoder
	progress domain.ProgressSink
	interval int64
	bufSize  int
	uploadID string
	logger   *logger.Logger

	state     domain.State
	bytesRead int64
	parts     []domain.Part
}

// Option configures a Controller.
type Option func(*Controller)

func WithDecoder(d filename.Decoder) Option {
	return func(c *Controller) { c.decoder = d }
}

func WithProgress(sink domain.ProgressSink) Option {
	return func(c *Controller) { c.progress = sink }
}

// WithProgressInterval sets how many bytes must accumulate between samples.
func WithProgressInterval(n int64) Option {
	return func(c *Controller) { c.interval = n }
}

func WithBufferSize(n int) Option {
	return func(c *Controller) { c.bufSize = n }
}

func WithUploadID(id string) Option {
	return func(c *Controller) { c.uploadID = id }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController prepares a controller for src. token is the boundary token
// including its leading "--", as returned by ParseBoundary.
func NewController(src io.Reader, token []byte, store domain.PartStore, opts ...Option) (*Controller, error) {
	if len(token) <= len(dashDash) {
		return nil, fmt.Errorf("%w: empty boundary", _errors.ErrMalformedRequest)
	}

	c := &Controller{
		src:      src,
		token:    NewMatcher(token),
		delim:    NewMatcher(append(append([]byte(nil), crlf...), token...)),
		store:    store,
		decoder:  filename.Heuristic{},
		interval: DefaultProgressInterval,
		bufSize:  DefaultBufferSize,
		logger:   logger.WithField("component", "multipart"),
	}
	for _, opt := range opts {
		opt(c)
	}

	// the window must hold a whole delimiter plus the bytes after it
	if need := 2 * c.delim.Len(); c.bufSize < need {
		return nil, fmt.Errorf("buffer size %d too small for boundary, need at least %d", c.bufSize, need)
	}
	if c.interval < 1 {
		c.interval = DefaultProgressInterval
	}
	if c.uploadID == "" {
		c.uploadID = uuid.NewString()
	}

	win, err := buffer.NewWindow(c.bufSize)
	if err != nil {
		return nil, err
	}
	c.win = win
	c.logger = c.logger.WithField("uploadId", c.uploadID)
	return c, nil
}

// State returns the current state.
func (c *Controller) State() domain.State {
	return c.state
}

// Run processes the whole body. The result is always returned, also on
// error, so callers can see which parts were stored before the failure.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	c.state = domain.SeekingFirstBoundary

	err := c.run(ctx)
	if err != nil {
		c.state = domain.Aborted
		c.logger.Warn("upload aborted",
			"error", err,
			"parts", len(c.parts),
			"received", humanize.Bytes(uint64(c.bytesRead)))
	} else {
		c.state = domain.Done
		c.logger.Debug("upload complete",
			"parts", len(c.parts),
			"received", humanize.Bytes(uint64(c.bytesRead)),
			"peakBuffered", c.win.Peak(),
			"duration", time.Since(start))
	}

	return &Result{
		UploadID:     c.uploadID,
		State:        c.state,
		Parts:        c.parts,
		BytesRead:    c.bytesRead,
		PeakBuffered: c.win.Peak(),
		BufferSize:   c.win.Cap(),
		Duration:     time.Since(start),
	}, err
}

func (c *Controller) run(ctx context.Context) error {
	if err := c.seekFirstBoundary(ctx); err != nil {
		return err
	}

	for {
		last, err := c.readBoundaryLine(ctx)
		if err != nil {
			return err
		}
		if last {
			return nil
		}

		c.state = domain.ReadingHeaders
		header, err := c.readHeaders(ctx)
		if err != nil {
			return err
		}

		c.state = domain.StreamingPayload
		if err := c.streamPart(ctx, header); err != nil {
			return err
		}
	}
}

// seekFirstBoundary discards the preamble, holding back only a possible
// token prefix across refills.
func (c *Controller) seekFirstBoundary(ctx context.Context) error {
	for {
		buf := c.win.Bytes()
		if i := c.token.Index(buf, 0); i >= 0 {
			c.win.Consume(i + c.token.Len())
			return nil
		}
		c.win.Consume(len(buf) - c.token.SuffixOverlap(buf))

		if err := c.fill(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: opening boundary not found", _errors.ErrMalformedRequest)
			}
			return err
		}
	}
}

// streamPart opens the destination for one part and streams its payload.
func (c *Controller) streamPart(ctx context.Context, header []byte) error {
	part := domain.Part{Header: filename.HeaderText(header)}
	log := c.logger

	var dst io.WriteCloser
	name, ok := c.decoder.Decode(header)
	if !ok || name == "" {
		part.Skipped = true
		dst = discardCloser{}
		log.Debug("skipping part without filename")
	} else {
		leaf, err := filename.Sanitize(name)
		if err != nil {
			return err
		}
		part.Filename = leaf
		log = log.WithField("file", leaf)

		f, err := c.store.Create(leaf)
		if err != nil {
			return err
		}
		part.Path = f.Name()
		dst = f
		log.Debug("receiving file", "path", part.Path)
	}

	pw := newPartWriter(dst, part, c.uploadID, c.progress, c.interval)
	streamErr := c.streamPayload(ctx, pw)
	done, closeErr := pw.finish(streamErr == nil)
	c.parts = append(c.parts, done)

	if streamErr != nil {
		if !done.Skipped {
			log.Warn("partial file kept", "received", humanize.Bytes(uint64(done.Size)), "error", streamErr)
		}
		return streamErr
	}
	if closeErr != nil {
		return closeErr
	}

	if !done.Skipped {
		log.Info("file received",
			"size", humanize.Bytes(uint64(done.Size)),
			"bytes", done.Size,
			"blake3", done.Digest)
	}
	return nil
}

// fill refills the window and accounts for the bytes read. Read failures
// other than io.EOF and a full window surface as ErrIncompleteStream.
func (c *Controller) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", _errors.ErrIncompleteStream, err)
	}
	n, err := c.win.Fill(c.src)
	c.bytesRead += int64(n)
	switch {
	case err == nil, errors.Is(err, io.EOF), buffer.IsCapacityError(err):
		return err
	}
	return fmt.Errorf("%w: read body: %w", _errors.ErrIncompleteStream, err)
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
