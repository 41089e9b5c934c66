package filename

// Strict follows RFC 6266 without guessing: filename* in UTF-8 or
// ISO-8859-1 wins, otherwise the plain filename is used as sent.
type Strict struct{}

func (Strict) Decode(header []byte) (string, bool) {
	params, ok := dispositionParams(header)
	if !ok {
		return "", false
	}

	if ext, ok := params["filename*"]; ok {
		if name, err := decodeExtended(ext, strictCharset); err == nil && name != "" {
			return name, true
		}
	}

	plain, ok := params["filename"]
	return plain, ok
}
