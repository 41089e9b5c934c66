package multipart

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"filetransfer/internal/transfer/domain"
)

// memStore keeps created files in memory.
type memStore struct {
	mu      sync.Mutex
	files   map[string]*memFile
	created []string
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]*memFile)}
}

func (s *memStore) Create(name string) (domain.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.failOn {
		return nil, errors.New("disk full")
	}
	f := &memFile{name: "/mem/" + name}
	s.files[name] = f
	s.created = append(s.created, name)
	return f, nil
}

// contents returns name -> bytes for every created file.
func (s *memStore) contents() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.files))
	for name, f := range s.files {
		out[name] = f.buf.String()
	}
	return out
}

func (s *memStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memFile struct {
	name   string
	buf    bytes.Buffer
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("write to closed file")
	}
	return f.buf.Write(p)
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func (f *memFile) Name() string { return f.name }

// countingStore accepts any size without keeping the bytes.
type countingStore struct {
	sizes map[string]int64
}

func (s *countingStore) Create(name string) (domain.Destination, error) {
	if s.sizes == nil {
		s.sizes = make(map[string]int64)
	}
	return &countingFile{name: name, store: s}, nil
}

type countingFile struct {
	name  string
	store *countingStore
}

func (f *countingFile) Write(p []byte) (int, error) {
	f.store.sizes[f.name] += int64(len(p))
	return len(p), nil
}

func (f *countingFile) Close() error { return nil }
func (f *countingFile) Name() string { return f.name }

// chunkReader returns the chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
}

func splitAt(body []byte, positions ...int) *chunkReader {
	r := &chunkReader{}
	prev := 0
	for _, p := range positions {
		r.chunks = append(r.chunks, body[prev:p])
		prev = p
	}
	r.chunks = append(r.chunks, body[prev:])
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

type filePart struct {
	field    string
	filename string
	content  string
}

// buildBody renders a multipart body with CRLF line endings.
func buildBody(boundary string, parts ...filePart) []byte {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		if p.filename != "" {
			b.WriteString(`Content-Disposition: form-data; name="` + p.field + `"; filename="` + p.filename + "\"\r\n")
			b.WriteString("Content-Type: application/octet-stream\r\n")
		} else {
			b.WriteString(`Content-Disposition: form-data; name="` + p.field + "\"\r\n")
		}
		b.WriteString("\r\n")
		b.WriteString(p.content)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
