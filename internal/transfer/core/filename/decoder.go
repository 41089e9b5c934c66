package filename

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Decoder extracts a filename from the raw header block of one part.
// ok is false when the block carries no filename parameter at all.
type Decoder interface {
	Decode(header []byte) (name string, ok bool)
}

const (
	ModeHeuristic = "heuristic"
	ModeStrict    = "strict"
)

// New returns the decoder for a configured mode.
func New(mode string) (Decoder, error) {
	switch strings.ToLower(mode) {
	case "", ModeHeuristic:
		return Heuristic{}, nil
	case ModeStrict:
		return Strict{}, nil
	default:
		return nil, fmt.Errorf("unknown filename decoding mode: %s", mode)
	}
}

// HeaderText turns raw header bytes into a string. Bytes that are not valid
// UTF-8 are read as ISO-8859-1, which maps every byte to one rune.
func HeaderText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(s)
}

// dispositionParams finds the Content-Disposition line and returns its
// parameters keyed by lower-cased name.
func dispositionParams(header []byte) (map[string]string, bool) {
	for _, line := range strings.Split(HeaderText(header), "\r\n") {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(line[:colon]), "Content-Disposition") {
			continue
		}
		return parseParams(line[colon+1:]), true
	}
	return nil, false
}

// parseParams is deliberately lenient: clients send unescaped backslashes,
// raw UTF-8 and unbalanced quotes that mime.ParseMediaType rejects outright.
// Bare tokens such as the disposition type are skipped. The first occurrence
// of a parameter wins.
func parseParams(s string) map[string]string {
	params := make(map[string]string)
	for {
		s = strings.TrimLeft(s, " \t;")
		if s == "" {
			return params
		}
		eq := strings.IndexAny(s, "=;")
		if eq < 0 {
			return params
		}
		if s[eq] == ';' {
			s = s[eq+1:]
			continue
		}

		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")

		var val string
		if strings.HasPrefix(s, `"`) {
			val, s = unquote(s[1:])
		} else if semi := strings.IndexByte(s, ';'); semi >= 0 {
			val, s = strings.TrimSpace(s[:semi]), s[semi+1:]
		} else {
			val, s = strings.TrimSpace(s), ""
		}

		if _, dup := params[key]; !dup && key != "" {
			params[key] = val
		}
	}
}

// unquote reads a quoted-string body up to the closing quote and returns the
// value and the input left after the next parameter separator. A backslash
// only escapes a quote or another backslash so Windows paths survive.
func unquote(s string) (string, string) {
	var b strings.Builder
	i := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
			b.WriteByte(s[i])
			continue
		}
		if c == '"' {
			break
		}
		b.WriteByte(c)
	}
	rest := ""
	if i < len(s) {
		rest = s[i+1:]
	}
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		rest = rest[semi+1:]
	} else {
		rest = ""
	}
	return b.String(), rest
}

// decodeExtended decodes an RFC 5987 ext-value: charset'language'pct-value.
// lookup resolves the charset; nil means UTF-8.
func decodeExtended(v string, lookup func(string) (encoding.Encoding, error)) (string, error) {
	fields := strings.SplitN(v, "'", 3)
	if len(fields) != 3 {
		return "", fmt.Errorf("malformed extended value %q", v)
	}
	raw, err := url.PathUnescape(fields[2])
	if err != nil {
		return "", err
	}

	enc, err := lookup(strings.TrimSpace(fields[0]))
	if err != nil {
		return "", err
	}
	if enc == nil || enc == unicode.UTF8 {
		if !utf8.ValidString(raw) {
			return "", fmt.Errorf("extended value is not valid UTF-8")
		}
		return raw, nil
	}
	return enc.NewDecoder().String(raw)
}

// lenientCharset accepts any IANA charset and falls back to UTF-8 for
// unknown or unsupported names.
func lenientCharset(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, nil
	}
	return enc, nil
}

// strictCharset only admits the two charsets RFC 5987 requires.
func strictCharset(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(name) {
	case "UTF-8":
		return nil, nil
	case "ISO-8859-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
}
