package multipart

import "bytes"

// minShiftTableLen is the shortest pattern that gets a bad-character table.
// Below it, building the table costs more than it saves.
const minShiftTableLen = 4

// Matcher finds a fixed byte pattern in a buffer. Patterns of at least
// minShiftTableLen bytes use Horspool's bad-character rule: compare right to
// left and, on mismatch, shift by the distance of the window's last byte
// from the end of the pattern.
type Matcher struct {
	pattern []byte
	shift   *[256]int
}

// NewMatcher copies pattern and prepares the shift table.
func NewMatcher(pattern []byte) *Matcher {
	m := &Matcher{pattern: bytes.Clone(pattern)}
	n := len(m.pattern)
	if n < minShiftTableLen {
		return m
	}

	m.shift = new([256]int)
	for i := range m.shift {
		m.shift[i] = n
	}
	for i := 0; i < n-1; i++ {
		m.shift[m.pattern[i]] = n - 1 - i
	}
	return m
}

// Len returns the pattern length.
func (m *Matcher) Len() int {
	return len(m.pattern)
}

// Index returns the offset of the first occurrence of the pattern in buf at
// or after from, or -1.
func (m *Matcher) Index(buf []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(buf) {
		return -1
	}
	n := len(m.pattern)
	if n == 0 {
		return from
	}

	if m.shift == nil {
		if i := bytes.Index(buf[from:], m.pattern); i >= 0 {
			return from + i
		}
		return -1
	}

	last := n - 1
	for i := from; i+n <= len(buf); {
		j := last
		for j >= 0 && buf[i+j] == m.pattern[j] {
			j--
		}
		if j < 0 {
			return i
		}
		i += m.shift[buf[i+last]]
	}
	return -1
}

// SuffixOverlap returns the length of the longest proper prefix of the
// pattern that buf ends with. Those bytes may be the start of an occurrence
// completed by the next read, so they must stay buffered.
func (m *Matcher) SuffixOverlap(buf []byte) int {
	k := len(m.pattern) - 1
	if k > len(buf) {
		k = len(buf)
	}
	for ; k > 0; k-- {
		if bytes.HasSuffix(buf, m.pattern[:k]) {
			return k
		}
	}
	return 0
}
