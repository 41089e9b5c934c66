package multipart

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"syscall"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"filetransfer/internal/transfer/domain"
	_errors "filetransfer/pkg/errors"
)

func run(t *testing.T, src io.Reader, token string, store domain.PartStore, opts ...Option) (*Result, error) {
	t.Helper()
	c, err := NewController(src, []byte(token), store, opts...)
	require.NoError(t, err)
	return c.Run(context.Background())
}

func TestConcreteScenario(t *testing.T) {
	body := "--B\r\nContent-Disposition: form-data; name=\"f\"; filename=\"a.txt\"\r\n\r\nhello\r\n--B--\r\n"
	store := newMemStore()

	res, err := run(t, strings.NewReader(body), "--B", store)
	require.NoError(t, err)

	assert.Equal(t, domain.Done, res.State)
	assert.Equal(t, map[string]string{"a.txt": "hello"}, store.contents())
	require.Len(t, res.Parts, 1)
	assert.Equal(t, int64(5), res.Parts[0].Size)
	assert.True(t, res.Parts[0].Complete)
	assert.Equal(t, "/mem/a.txt", res.Parts[0].Path)
	assert.True(t, store.files["a.txt"].closed)
	assert.Equal(t, int64(len(body)), res.BytesRead)
}

func TestBoundarySplitInvariant(t *testing.T) {
	body := append([]byte("preamble text\r\n"), buildBody("XyZ-0123",
		filePart{field: "note", content: "just a field"},
		filePart{field: "f1", filename: "one.bin", content: "line\r\n--XyZ-012 almost a boundary\r\n\r\n-"},
		filePart{field: "f2", filename: "two.txt", content: ""},
		filePart{field: "f3", filename: "three.txt", content: strings.Repeat("0123456789", 40)},
	)...)
	body = append(body, []byte("epilogue is ignored")...)
	token := "--XyZ-0123"

	for _, bufSize := range []int{128, DefaultBufferSize} {
		baseStore := newMemStore()
		base, err := run(t, bytes.NewReader(body), token, baseStore, WithBufferSize(bufSize), WithUploadID("u"))
		require.NoError(t, err)
		require.Equal(t, domain.Done, base.State)
		require.Equal(t, []string{"one.bin", "three.txt", "two.txt"}, baseStore.names())
		assert.Equal(t, strings.Repeat("0123456789", 40), baseStore.contents()["three.txt"])

		for k := 0; k <= len(body); k++ {
			store := newMemStore()
			res, err := run(t, splitAt(body, k), token, store, WithBufferSize(bufSize), WithUploadID("u"))
			require.NoError(t, err, "split at %d", k)

			if diff := cmp.Diff(baseStore.contents(), store.contents()); diff != "" {
				t.Fatalf("buffer %d split at %d: files differ (-want +got):\n%s", bufSize, k, diff)
			}
			if diff := cmp.Diff(base.Parts, res.Parts); diff != "" {
				t.Fatalf("buffer %d split at %d: parts differ (-want +got):\n%s", bufSize, k, diff)
			}
			assert.Equal(t, base.State, res.State)
		}

		// every byte on its own
		store := newMemStore()
		res, err := run(t, iotest.OneByteReader(bytes.NewReader(body)), token, store, WithBufferSize(bufSize), WithUploadID("u"))
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(baseStore.contents(), store.contents()))
		assert.Empty(t, cmp.Diff(base.Parts, res.Parts))
	}
}

func TestMemoryBoundedByWindow(t *testing.T) {
	const size = 8 << 20
	const bufSize = 4096

	src := io.MultiReader(
		strings.NewReader("--bound\r\nContent-Disposition: form-data; name=\"f\"; filename=\"big.dat\"\r\n\r\n"),
		io.LimitReader(repeatReader('x'), size),
		strings.NewReader("\r\n--bound--"),
	)
	store := &countingStore{}

	res, err := run(t, src, "--bound", store, WithBufferSize(bufSize))
	require.NoError(t, err)
	assert.Equal(t, domain.Done, res.State)
	assert.Equal(t, int64(size), store.sizes["big.dat"])
	assert.Equal(t, bufSize, res.BufferSize)
	assert.LessOrEqual(t, res.PeakBuffered, bufSize)
}

type repeatReader byte

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func TestTerminalDetection(t *testing.T) {
	part := "--B\r\nContent-Disposition: form-data; name=\"f\"; filename=\"a.txt\"\r\n\r\nhello\r\n"

	tests := []struct {
		name  string
		body  string
		state domain.State
		err   error
		files int
	}{
		{name: "terminal boundary", body: part + "--B--", state: domain.Done, files: 1},
		{name: "terminal boundary with epilogue", body: part + "--B--\r\ntrailing", state: domain.Done, files: 1},
		{name: "ends after continuation boundary", body: part + "--B\r\n", state: domain.Aborted, err: _errors.ErrIncompleteStream, files: 1},
		{name: "ends right after token", body: part + "--B", state: domain.Aborted, err: _errors.ErrIncompleteStream, files: 1},
		{name: "ends inside headers", body: part + "--B\r\nContent-Disposition: form", state: domain.Aborted, err: _errors.ErrIncompleteStream, files: 1},
		{name: "empty body", body: "", state: domain.Aborted, err: _errors.ErrMalformedRequest},
		{name: "no boundary at all", body: "hello world", state: domain.Aborted, err: _errors.ErrMalformedRequest},
		{name: "no parts", body: "--B--\r\n", state: domain.Done},
		{name: "transport padding", body: "--B \t\r\nContent-Disposition: form-data; filename=\"a.txt\"\r\n\r\nhello\r\n--B--", state: domain.Done, files: 1},
		{name: "garbage after boundary", body: "--Bx\r\n", state: domain.Aborted, err: _errors.ErrMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			c, err := NewController(strings.NewReader(tt.body), []byte("--B"), store)
			require.NoError(t, err)

			res, err := c.Run(context.Background())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, tt.state, c.State())
			assert.Len(t, store.files, tt.files)
			if tt.files == 1 {
				assert.Equal(t, "hello", store.contents()["a.txt"])
			}
		})
	}
}

func TestAbortKeepsPartialFile(t *testing.T) {
	body := "--B\r\nContent-Disposition: form-data; filename=\"a.txt\"\r\n\r\nhello wor\r\n--"
	store := newMemStore()

	res, err := run(t, strings.NewReader(body), "--B", store)
	require.ErrorIs(t, err, _errors.ErrIncompleteStream)
	assert.True(t, _errors.IsClientError(err))
	assert.Equal(t, domain.Aborted, res.State)

	// the held back delimiter prefix is flushed too
	assert.Equal(t, "hello wor\r\n--", store.contents()["a.txt"])
	assert.True(t, store.files["a.txt"].closed)
	require.Len(t, res.Parts, 1)
	assert.False(t, res.Parts[0].Complete)
	assert.Equal(t, int64(13), res.Parts[0].Size)
}

func TestFieldPartsAreSkipped(t *testing.T) {
	body := buildBody("sep",
		filePart{field: "title", content: "holiday"},
		filePart{field: "empty", filename: "", content: "ignored"},
		filePart{field: "f", filename: "pic.jpg", content: "JPEGDATA"},
	)
	// a file input left empty by the browser
	body = bytes.Replace(body, []byte(`name="empty"`), []byte(`name="empty"; filename=""`), 1)

	store := newMemStore()
	res, err := run(t, bytes.NewReader(body), "--sep", store)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"pic.jpg": "JPEGDATA"}, store.contents())
	require.Len(t, res.Parts, 3)
	assert.True(t, res.Parts[0].Skipped)
	assert.True(t, res.Parts[1].Skipped)
	assert.Equal(t, int64(len("holiday")), res.Parts[0].Size)
	files := res.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "pic.jpg", files[0].Filename)
}

func TestPathTraversalNames(t *testing.T) {
	body := buildBody("b", filePart{field: "f", filename: "../../etc/passwd", content: "root:x"})
	store := newMemStore()

	res, err := run(t, bytes.NewReader(body), "--b", store)
	require.NoError(t, err)
	assert.Equal(t, []string{"passwd"}, store.names())
	assert.Equal(t, "passwd", res.Parts[0].Filename)

	body = buildBody("b", filePart{field: "f", filename: "..", content: "x"})
	store = newMemStore()
	res, err = run(t, bytes.NewReader(body), "--b", store)
	assert.ErrorIs(t, err, _errors.ErrPathTraversal)
	assert.Equal(t, domain.Aborted, res.State)
	assert.Empty(t, store.created)
}

func TestFilesystemErrorKeepsEarlierParts(t *testing.T) {
	body := buildBody("b",
		filePart{field: "f", filename: "first.txt", content: "1"},
		filePart{field: "f", filename: "second.txt", content: "2"},
	)
	store := newMemStore()
	store.failOn = "second.txt"

	res, err := run(t, bytes.NewReader(body), "--b", store)
	require.Error(t, err)
	assert.Equal(t, domain.Aborted, res.State)
	assert.Equal(t, map[string]string{"first.txt": "1"}, store.contents())
	require.Len(t, res.Parts, 1)
	assert.True(t, res.Parts[0].Complete)
}

type failingDest struct{ memFile }

func (f *failingDest) Write([]byte) (int, error) { return 0, syscall.ENOSPC }

type failingStore struct{}

func (failingStore) Create(name string) (domain.Destination, error) {
	return &failingDest{memFile{name: name}}, nil
}

func TestWriteErrorIsFilesystemError(t *testing.T) {
	body := buildBody("b", filePart{field: "f", filename: "x.txt", content: "data"})

	_, err := run(t, bytes.NewReader(body), "--b", failingStore{})
	assert.ErrorIs(t, err, _errors.ErrFilesystem)
	assert.ErrorIs(t, err, syscall.ENOSPC, "cause stays in the chain")
	assert.True(t, _errors.IsStorageError(err))
}

func TestProgressSamples(t *testing.T) {
	content := strings.Repeat("a", 1000)
	body := buildBody("b", filePart{field: "f", filename: "p.txt", content: content})

	var samples []domain.ProgressSample
	sink := domain.ProgressFunc(func(s domain.ProgressSample) { samples = append(samples, s) })

	res, err := run(t, iotest.HalfReader(bytes.NewReader(body)), "--b", newMemStore(),
		WithProgress(sink), WithProgressInterval(100), WithBufferSize(128), WithUploadID("upload-1"))
	require.NoError(t, err)
	assert.Equal(t, "upload-1", res.UploadID)

	require.NotEmpty(t, samples)
	last := samples[len(samples)-1]
	assert.Equal(t, int64(1000), last.Transferred)
	assert.Greater(t, len(samples), 5)

	var prev int64
	for _, s := range samples {
		assert.Equal(t, "upload-1", s.UploadID)
		assert.Equal(t, "p.txt", s.Filename)
		assert.Equal(t, domain.UnknownTotal, s.Total)
		assert.GreaterOrEqual(t, s.Transferred, prev)
		prev = s.Transferred
	}
}

func TestDigest(t *testing.T) {
	body := buildBody("b", filePart{field: "f", filename: "d.txt", content: "digest me"})

	res, err := run(t, bytes.NewReader(body), "--b", newMemStore())
	require.NoError(t, err)

	sum := blake3.Sum256([]byte("digest me"))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Parts[0].Digest)
}

func TestHeaderBlockTooLarge(t *testing.T) {
	body := "--b\r\nContent-Disposition: form-data; filename=\"x\"\r\nX-Pad: " + strings.Repeat("p", 300) + "\r\n\r\nbody\r\n--b--"

	res, err := run(t, strings.NewReader(body), "--b", newMemStore(), WithBufferSize(128))
	assert.ErrorIs(t, err, _errors.ErrMalformedRequest)
	assert.Equal(t, domain.Aborted, res.State)
}

func TestEmptyHeaderBlock(t *testing.T) {
	body := "--b\r\n\r\nanonymous\r\n--b--"

	res, err := run(t, strings.NewReader(body), "--b", newMemStore())
	require.NoError(t, err)
	require.Len(t, res.Parts, 1)
	assert.True(t, res.Parts[0].Skipped)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadErrorAborts(t *testing.T) {
	src := io.MultiReader(
		strings.NewReader("--b\r\nContent-Disposition: form-data; filename=\"c.txt\"\r\n\r\npartial"),
		errReader{err: fmt.Errorf("connection reset by peer")},
	)
	store := newMemStore()

	res, err := run(t, src, "--b", store)
	assert.ErrorIs(t, err, _errors.ErrIncompleteStream)
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Equal(t, domain.Aborted, res.State)
	assert.Equal(t, "partial", store.contents()["c.txt"])
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewController(strings.NewReader("--b--"), []byte("--b"), newMemStore())
	require.NoError(t, err)
	res, err := c.Run(ctx)
	assert.ErrorIs(t, err, _errors.ErrIncompleteStream)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.Aborted, res.State)
}

func TestNewControllerValidation(t *testing.T) {
	_, err := NewController(strings.NewReader(""), []byte("--"), newMemStore())
	assert.ErrorIs(t, err, _errors.ErrMalformedRequest)

	_, err = NewController(strings.NewReader(""), []byte("--boundary"), newMemStore(), WithBufferSize(8))
	assert.ErrorContains(t, err, "too small")
}
