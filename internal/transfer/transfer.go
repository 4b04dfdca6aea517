// Package transfer decodes MIME content-transfer-encodings.
package transfer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/felo/emldecode/internal/charset"
)

// ErrInvalidEncoding is matched by every error returned for malformed
// transfer-encoded content.
var ErrInvalidEncoding = errors.New("invalid transfer encoding")

// InvalidEncodingError describes malformed encoded content.
type InvalidEncodingError struct {
	Encoding string
	Err      error
}

func (e *InvalidEncodingError) Error() string {
	return fmt.Sprintf("invalid %s content: %v", e.Encoding, e.Err)
}

func (e *InvalidEncodingError) Unwrap() error { return e.Err }

func (e *InvalidEncodingError) Is(target error) bool { return target == ErrInvalidEncoding }

// Encoding is a content-transfer-encoding recognised by Select.
type Encoding int

const (
	Identity Encoding = iota
	Base64
	QuotedPrintable
)

func (e Encoding) String() string {
	switch e {
	case Base64:
		return "base64"
	case QuotedPrintable:
		return "quoted-printable"
	}
	return "identity"
}

// Select picks the decoder for a Content-Transfer-Encoding header value.
// Matching is a case-insensitive substring test, so any value mentioning
// "base64" selects base64. Absent or other values (7bit, 8bit, binary) are
// identity.
func Select(cte string) Encoding {
	lower := strings.ToLower(cte)
	switch {
	case strings.Contains(lower, "base64"):
		return Base64
	case strings.Contains(lower, "quoted-printable"):
		return QuotedPrintable
	}
	return Identity
}

// DecodeBase64 decodes standard base64. ASCII whitespace, including the line
// breaks of the raw content, is ignored.
func DecodeBase64(input string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\f', '\v':
			return -1
		}
		return r
	}, input)

	out, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, &InvalidEncodingError{Encoding: "base64", Err: err}
	}
	return out, nil
}

// DecodeQuotedPrintableBytes decodes quoted-printable input to raw bytes.
//
// "=" followed by a line break is a soft break and is dropped, "=" followed by
// two hex digits is that byte, and everything else is copied as is. A stray
// "=" that starts neither is kept literally.
func DecodeQuotedPrintableBytes(input string) []byte {
	out := make([]byte, len(input))
	o := 0
	for i := 0; i < len(input); {
		c := input[i]
		if c != '=' {
			out[o] = c
			o++
			i++
			continue
		}
		switch {
		case i+2 < len(input) && input[i+1] == '\r' && input[i+2] == '\n':
			i += 3
		case i+1 < len(input) && input[i+1] == '\n':
			i += 2
		case i+2 < len(input) && isHex(input[i+1]) && isHex(input[i+2]):
			out[o] = unhex(input[i+1])<<4 | unhex(input[i+2])
			o++
			i += 3
		default:
			out[o] = c
			o++
			i++
		}
	}
	return out[:o]
}

// DecodeQuotedPrintable decodes quoted-printable input and converts the
// resulting bytes with the named charset. An empty charset means UTF-8.
func DecodeQuotedPrintable(input, charsetName string) (string, error) {
	c, err := charset.Resolve(charsetName)
	if err != nil {
		return "", err
	}
	return c.Decode(DecodeQuotedPrintableBytes(input))
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}
