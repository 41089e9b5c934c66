package domain

import (
	"io"
	"time"
)

// State is a position of the multipart stream controller.
type State int

const (
	SeekingFirstBoundary State = iota
	ReadingHeaders
	StreamingPayload
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case SeekingFirstBoundary:
		return "SEEKING_FIRST_BOUNDARY"
	case ReadingHeaders:
		return "READING_HEADERS"
	case StreamingPayload:
		return "STREAMING_PAYLOAD"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == Done || s == Aborted
}

// Part is one segment of a multipart body after it has been streamed.
type Part struct {
	// Filename is the decoded, sanitized leaf name.
	Filename string `json:"filename,omitempty"`
	// Path is the destination on disk, empty for skipped parts.
	Path   string `json:"-"`
	Header string `json:"-"`
	Size   int64  `json:"size"`
	Digest string `json:"blake3,omitempty"`
	// Skipped is set for form fields and parts with an empty filename.
	Skipped bool `json:"skipped,omitempty"`
	// Complete is false when the stream ended inside the payload.
	Complete bool `json:"complete"`
}

// UnknownTotal marks a progress sample whose final size is not known yet.
// Multipart bodies never declare per-part lengths.
const UnknownTotal int64 = -1

// ProgressSample is a side-channel notification emitted while a part is written.
type ProgressSample struct {
	UploadID    string
	Filename    string
	Transferred int64
	Total       int64
}

// ProgressSink receives progress samples. Implementations must not block for long;
// they run on the request goroutine.
type ProgressSink interface {
	Progress(sample ProgressSample)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(sample ProgressSample)

func (f ProgressFunc) Progress(sample ProgressSample) {
	f(sample)
}

// Destination is an opened output for one file part.
type Destination interface {
	io.WriteCloser
	Name() string
}

// PartStore creates destinations for file parts.
type PartStore interface {
	// Create opens a fresh destination for the sanitized leaf name,
	// truncating any existing file of that name.
	Create(name string) (Destination, error)
}

// FileInfo describes a stored file.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}
