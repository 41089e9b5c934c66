package filename

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Heuristic is the default decoder. On top of RFC 5987 it repairs the common
// client mis-encoding where UTF-8 bytes were sent as Latin-1 characters. The
// repair is a best-effort guess, not a protocol guarantee: a candidate is
// kept only when it raises the number of CJK characters, or failing that
// the number of characters above U+07FF.
type Heuristic struct{}

func (Heuristic) Decode(header []byte) (string, bool) {
	params, ok := dispositionParams(header)
	if !ok {
		return "", false
	}

	if ext, ok := params["filename*"]; ok {
		if name, err := decodeExtended(ext, lenientCharset); err == nil && name != "" {
			return name, true
		}
	}

	plain, ok := params["filename"]
	if !ok {
		return "", false
	}
	return decodePlain(plain), true
}

func decodePlain(v string) string {
	if strings.Contains(v, "%") {
		// PathUnescape leaves '+' alone; browsers never form-encode filenames.
		if d, err := url.PathUnescape(v); err == nil && d != v && utf8.ValidString(d) {
			return d
		}
	}
	if repaired, ok := reinterpretLatin1(v); ok {
		return repaired
	}
	return v
}

// reinterpretLatin1 treats every rune of s as one byte and decodes the
// result as UTF-8.
func reinterpretLatin1(s string) (string, bool) {
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil || raw == s || !utf8.ValidString(raw) {
		return "", false
	}

	beforeCJK, afterCJK := countRunes(s, isCJK), countRunes(raw, isCJK)
	if afterCJK > beforeCJK {
		return raw, true
	}
	if afterCJK == beforeCJK && countRunes(raw, isWide) > countRunes(s, isWide) {
		return raw, true
	}
	return "", false
}

func countRunes(s string, pred func(rune) bool) int {
	n := 0
	for _, r := range s {
		if pred(r) {
			n++
		}
	}
	return n
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func isWide(r rune) bool {
	return r > 0x07FF
}
