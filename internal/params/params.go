// Package params extracts parameters from Content-Type style header values.
//
// The scanner is lexical rather than a full RFC 2045 tokenizer: it looks for
// the keyword anywhere in the value and reads the first occurrence that is
// followed by a well-formed "=value".
package params

import (
	"strings"
	"unicode"
)

// Boundary returns the multipart boundary parameter.
func Boundary(ct string) (string, bool) {
	return scan(ct, "boundary", false)
}

// Charset returns the charset parameter.
func Charset(ct string) (string, bool) {
	return scan(ct, "charset", false)
}

// Name returns the name parameter. Occurrences inside a longer word, such
// as "filename", are not matched.
func Name(ct string) (string, bool) {
	return scan(ct, "name", true)
}

// Get returns an arbitrary parameter using the same rules as Boundary.
func Get(ct, key string) (string, bool) {
	return scan(ct, asciiLower(key), false)
}

func scan(ct, key string, wordStart bool) (string, bool) {
	lower := asciiLower(ct)
	from := 0
	for {
		i := strings.Index(lower[from:], key)
		if i < 0 {
			return "", false
		}
		i += from
		from = i + len(key)

		if wordStart && i > 0 && isWordByte(ct[i-1]) {
			continue
		}
		if v, ok := value(ct, i+len(key)); ok {
			return v, true
		}
	}
}

// value parses `[ws] "=" [ws] value` starting at pos.
func value(s string, pos int) (string, bool) {
	pos = skipSpace(s, pos)
	if pos >= len(s) || s[pos] != '=' {
		return "", false
	}
	pos = skipSpace(s, pos+1)
	if pos >= len(s) {
		return "", false
	}

	switch q := s[pos]; q {
	case '"', '\'':
		return quoted(s, pos+1, q)
	}

	end := pos
	for end < len(s) && s[end] != ';' && !unicode.IsSpace(rune(s[end])) {
		end++
	}
	if end == pos {
		return "", false
	}
	return s[pos:end], true
}

// quoted reads a value closed by q, removing backslash escapes.
func quoted(s string, pos int, q byte) (string, bool) {
	var sb strings.Builder
	for pos < len(s) {
		c := s[pos]
		switch {
		case c == '\\':
			if pos+1 >= len(s) {
				return "", false
			}
			sb.WriteByte(s[pos+1])
			pos += 2
		case c == q:
			if sb.Len() == 0 {
				return "", false
			}
			return sb.String(), true
		default:
			sb.WriteByte(c)
			pos++
		}
	}
	return "", false
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t' || s[pos] == '\r' || s[pos] == '\n') {
		pos++
	}
	return pos
}

// asciiLower keeps byte offsets aligned with the input, which
// strings.ToLower does not guarantee for non-ASCII text.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func isWordByte(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
