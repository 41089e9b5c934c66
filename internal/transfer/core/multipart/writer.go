package multipart

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"filetransfer/internal/transfer/domain"
	_errors "filetransfer/pkg/errors"
)

// partWriter streams one part's payload to its destination, hashing and
// counting on the way and emitting throttled progress samples.
type partWriter struct {
	dst      io.WriteCloser
	out      io.Writer
	hash     *blake3.Hasher
	part     domain.Part
	uploadID string
	progress domain.ProgressSink
	interval int64
	reported int64
}

func newPartWriter(dst io.WriteCloser, part domain.Part, uploadID string, progress domain.ProgressSink, interval int64) *partWriter {
	h := blake3.New()
	return &partWriter{
		dst:      dst,
		out:      io.MultiWriter(dst, h),
		hash:     h,
		part:     part,
		uploadID: uploadID,
		progress: progress,
		interval: interval,
	}
}

func (pw *partWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := pw.out.Write(p)
	pw.part.Size += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %w", _errors.ErrFilesystem, pw.part.Filename, err)
	}
	if pw.part.Size-pw.reported >= pw.interval {
		pw.report()
	}
	return n, nil
}

func (pw *partWriter) report() {
	pw.reported = pw.part.Size
	if pw.progress == nil || pw.part.Skipped {
		return
	}
	pw.progress.Progress(domain.ProgressSample{
		UploadID:    pw.uploadID,
		Filename:    pw.part.Filename,
		Transferred: pw.part.Size,
		Total:       domain.UnknownTotal,
	})
}

// finish closes the destination and returns the part record. complete marks
// whether the closing delimiter was seen.
func (pw *partWriter) finish(complete bool) (domain.Part, error) {
	pw.part.Complete = complete
	pw.part.Digest = hex.EncodeToString(pw.hash.Sum(nil))
	if complete {
		pw.report()
	}
	if err := pw.dst.Close(); err != nil {
		return pw.part, fmt.Errorf("%w: close %s: %w", _errors.ErrFilesystem, pw.part.Filename, err)
	}
	return pw.part, nil
}

// streamPayload copies payload bytes from the window to pw until the
// delimiter (CRLF + boundary token) is found. Only a possible delimiter
// prefix is ever held back, so memory stays at the window size whatever
// the part size.
func (c *Controller) streamPayload(ctx context.Context, pw *partWriter) error {
	for {
		buf := c.win.Bytes()
		if i := c.delim.Index(buf, 0); i >= 0 {
			if _, err := pw.Write(buf[:i]); err != nil {
				return err
			}
			c.win.Consume(i + c.delim.Len())
			return nil
		}

		if n := len(buf) - c.delim.SuffixOverlap(buf); n > 0 {
			if _, err := pw.Write(buf[:n]); err != nil {
				return err
			}
			c.win.Consume(n)
		}

		if err := c.fill(ctx); err != nil {
			// keep what arrived so the partial file holds every received byte
			if _, werr := pw.Write(c.win.Bytes()); werr != nil {
				return werr
			}
			c.win.Consume(c.win.Len())
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: stream ended inside %q", _errors.ErrIncompleteStream, pw.part.Filename)
			}
			return err
		}
	}
}
