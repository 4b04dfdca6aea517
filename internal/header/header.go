// Package header decodes RFC 2047 encoded words in header values.
package header

import (
	"strings"

	"github.com/felo/emldecode/internal/charset"
	"github.com/felo/emldecode/internal/transfer"
)

// DecodeLine replaces every well-formed encoded word ("=?charset?Q?text?=" or
// "=?charset?B?text?=") in raw with its decoded text. Text between words,
// including whitespace separating adjacent words, is kept as is. Words that
// cannot be decoded stay literal.
func DecodeLine(raw string) string {
	if !strings.Contains(raw, "=?") {
		return raw
	}

	var sb strings.Builder
	sb.Grow(len(raw))

	rest := raw
	for {
		start := strings.Index(rest, "=?")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		rest = rest[start:]

		decoded, n, ok := decodeWord(rest)
		if !ok {
			if n == 0 {
				n = len("=?")
			}
			sb.WriteString(rest[:n])
			rest = rest[n:]
			continue
		}
		sb.WriteString(decoded)
		rest = rest[n:]
	}
	return sb.String()
}

// decodeWord decodes the encoded word at the start of s. It returns the
// decoded text and the number of bytes consumed. When the word is well
// formed but cannot be decoded, ok is false and n still spans the whole word
// so the caller copies it literally. n is zero when s does not start a word.
func decodeWord(s string) (decoded string, n int, ok bool) {
	// =?charset?X?text?=
	body := s[2:]
	q1 := strings.IndexByte(body, '?')
	if q1 <= 0 || q1+2 >= len(body) || body[q1+2] != '?' {
		return "", 0, false
	}
	cs := body[:q1]
	enc := body[q1+1]
	text := body[q1+3:]
	end := strings.Index(text, "?=")
	if end < 0 {
		return "", 0, false
	}
	text = text[:end]
	n = 2 + q1 + 3 + end + 2

	// RFC 2231 language suffix
	if i := strings.IndexByte(cs, '*'); i >= 0 {
		cs = cs[:i]
	}
	codec := charset.ResolveOrUTF8(cs)

	var raw []byte
	switch enc {
	case 'Q', 'q':
		raw = transfer.DecodeQuotedPrintableBytes(strings.ReplaceAll(text, "_", " "))
	case 'B', 'b':
		b, err := transfer.DecodeBase64(text)
		if err != nil {
			return "", n, false
		}
		raw = b
	default:
		return "", n, false
	}

	out, err := codec.Decode(raw)
	if err != nil {
		return "", n, false
	}
	return out, n, true
}
