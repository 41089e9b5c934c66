package multipart

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_errors "filetransfer/pkg/errors"
)

func TestMatcherIndex(t *testing.T) {
	tests := []struct {
		pattern string
		buf     string
		from    int
		want    int
	}{
		{"--B", "--B\r\n", 0, 0},
		{"--B", "xx--B", 0, 2},
		{"--B", "--B--B", 1, 3},
		{"\r\n--B", "hello\r\n--B--", 0, 5},
		{"\r\n--boundary", "abc\r\n--boundar", 0, -1},
		{"\r\n--boundary", "\r\n--boundary", 0, 0},
		{"\r\n--boundary", "\r\n--boundary", 1, -1},
		{"abcd", "abcabcabcd", 0, 6},
		{"abcd", "ab", 0, -1},
		{"abcd", "abcd", 9, -1},
		{"a", "", 0, -1},
	}

	for _, tt := range tests {
		m := NewMatcher([]byte(tt.pattern))
		assert.Equal(t, tt.want, m.Index([]byte(tt.buf), tt.from), "%q in %q from %d", tt.pattern, tt.buf, tt.from)
	}
}

func TestMatcherAgreesWithBytesIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []byte("ab-\r\n")

	for patLen := 1; patLen <= 9; patLen++ {
		for round := 0; round < 300; round++ {
			pattern := randomBytes(rng, alphabet, patLen)
			buf := randomBytes(rng, alphabet, rng.Intn(64))
			from := rng.Intn(len(buf) + 1)

			want := bytes.Index(buf[from:], pattern)
			if want >= 0 {
				want += from
			}
			require.Equal(t, want, NewMatcher(pattern).Index(buf, from), "pattern %q buf %q from %d", pattern, buf, from)
		}
	}
}

func randomBytes(rng *rand.Rand, alphabet []byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

func TestSuffixOverlap(t *testing.T) {
	m := NewMatcher([]byte("\r\n--B"))

	assert.Equal(t, 0, m.SuffixOverlap([]byte("hello")))
	assert.Equal(t, 1, m.SuffixOverlap([]byte("hello\r")))
	assert.Equal(t, 2, m.SuffixOverlap([]byte("hello\r\n")))
	assert.Equal(t, 4, m.SuffixOverlap([]byte("hello\r\n--")))
	assert.Equal(t, 0, m.SuffixOverlap([]byte("hello\r\n--B")), "a full match is not an overlap")
	assert.Equal(t, 1, m.SuffixOverlap([]byte("\r")))
	assert.Equal(t, 0, m.SuffixOverlap(nil))
}

func TestParseBoundary(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
		wantErr     bool
	}{
		{contentType: "multipart/form-data; boundary=B", want: "--B"},
		{contentType: `multipart/form-data; boundary="----WebKitFormBoundary7MA4YWxkTrZu0gW"`, want: "------WebKitFormBoundary7MA4YWxkTrZu0gW"},
		{contentType: "Multipart/Form-Data; charset=utf-8; boundary=abc", want: "--abc"},
		{contentType: "multipart/form-data", wantErr: true},
		{contentType: "multipart/form-data; boundary=", wantErr: true},
		{contentType: "multipart/mixed; boundary=abc", wantErr: true},
		{contentType: "application/json", wantErr: true},
		{contentType: "", wantErr: true},
		{contentType: "multipart/form-data; boundary=" + string(bytes.Repeat([]byte("a"), 71)), wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseBoundary(tt.contentType)
		if tt.wantErr {
			assert.ErrorIs(t, err, _errors.ErrMalformedRequest, tt.contentType)
			continue
		}
		require.NoError(t, err, tt.contentType)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestClassifyBoundaryLine(t *testing.T) {
	tests := []struct {
		in   string
		kind boundaryKind
		n    int
	}{
		{"", needMore, 0},
		{"-", needMore, 0},
		{"--", terminal, 2},
		{"--\r\n", terminal, 2},
		{"\r\n", continuation, 2},
		{"  \r\nX", continuation, 4},
		{"  ", needMore, 2},
		{" \r", needMore, 1},
		{"-x", invalid, 0},
		{"x", invalid, 0},
		{"\r\r", invalid, 0},
	}
	for _, tt := range tests {
		kind, n := classifyBoundaryLine([]byte(tt.in))
		assert.Equal(t, tt.kind, kind, "%q", tt.in)
		assert.Equal(t, tt.n, n, "%q", tt.in)
	}
}

func TestSplitHeaderBlock(t *testing.T) {
	block, n, ok := splitHeaderBlock([]byte("A: 1\r\nB: 2\r\n\r\nbody"))
	require.True(t, ok)
	assert.Equal(t, "A: 1\r\nB: 2", string(block))
	assert.Equal(t, 14, n)

	block, n, ok = splitHeaderBlock([]byte("\r\nbody"))
	require.True(t, ok)
	assert.Nil(t, block)
	assert.Equal(t, 2, n)

	_, _, ok = splitHeaderBlock([]byte("A: 1\r\n"))
	assert.False(t, ok)
}
