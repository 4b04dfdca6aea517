package transfer

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeQuotedPrintable tests quoted-printable decoding with charsets
func TestDecodeQuotedPrintable(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		charset  string
		expected string
	}{
		{name: "Hex escapes in UTF-8", input: "Caf=C3=A9", charset: "UTF-8", expected: "Café"},
		{name: "Empty charset is UTF-8", input: "Caf=C3=A9", charset: "", expected: "Café"},
		{name: "Soft break CRLF", input: "foo=\r\nbar", charset: "UTF-8", expected: "foobar"},
		{name: "Soft break LF", input: "foo=\nbar", charset: "UTF-8", expected: "foobar"},
		{name: "Lower case hex", input: "a=3db", charset: "UTF-8", expected: "a=b"},
		{name: "Latin-1", input: "Caf=E9", charset: "iso-8859-1", expected: "Café"},
		{name: "Plain text untouched", input: "no escapes here", charset: "UTF-8", expected: "no escapes here"},
		{name: "Stray equals kept", input: "a = b", charset: "UTF-8", expected: "a = b"},
		{name: "Trailing equals kept", input: "end=", charset: "UTF-8", expected: "end="},
		{name: "Incomplete escape kept", input: "x=4", charset: "UTF-8", expected: "x=4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeQuotedPrintable(tt.input, tt.charset)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

// TestDecodeQuotedPrintable_UnsupportedCharset tests that the charset error is returned
func TestDecodeQuotedPrintable_UnsupportedCharset(t *testing.T) {
	_, err := DecodeQuotedPrintable("abc", "x-unknown-charset")
	assert.Error(t, err)
}

// TestDecodeQuotedPrintableBytes tests raw byte output
func TestDecodeQuotedPrintableBytes(t *testing.T) {
	assert.Equal(t, []byte{0xff, 'a', 0x00}, DecodeQuotedPrintableBytes("=FFa=00"))
	assert.Empty(t, DecodeQuotedPrintableBytes(""))
}

// TestDecodeBase64 tests base64 decoding of line-wrapped content
func TestDecodeBase64(t *testing.T) {
	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "ASCII text", payload: []byte("The quick brown fox jumps over the lazy dog, repeatedly and at length.")},
		{name: "Every byte value", payload: allBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := base64.StdEncoding.EncodeToString(tt.payload)

			// Wrap at 20 columns with CRLF like mail bodies do
			wrapped := ""
			for i := 0; i < len(encoded); i += 20 {
				end := min(i+20, len(encoded))
				wrapped += encoded[i:end] + "\r\n"
			}

			out, err := DecodeBase64(wrapped)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, out)
		})
	}

	out, err := DecodeBase64("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestDecodeBase64_Invalid tests the error returned for malformed input
func TestDecodeBase64_Invalid(t *testing.T) {
	_, err := DecodeBase64("not*valid*base64!")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEncoding))

	var encErr *InvalidEncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "base64", encErr.Encoding)

	var corrupt base64.CorruptInputError
	assert.True(t, errors.As(err, &corrupt))
}

// TestSelect tests transfer encoding selection from header values
func TestSelect(t *testing.T) {
	tests := []struct {
		cte      string
		expected Encoding
	}{
		{cte: "base64", expected: Base64},
		{cte: "BASE64", expected: Base64},
		{cte: " Base64 ", expected: Base64},
		{cte: "quoted-printable", expected: QuotedPrintable},
		{cte: "Quoted-Printable", expected: QuotedPrintable},
		{cte: "7bit", expected: Identity},
		{cte: "8bit", expected: Identity},
		{cte: "binary", expected: Identity},
		{cte: "", expected: Identity},
	}

	for _, tt := range tests {
		t.Run(tt.cte, func(t *testing.T) {
			assert.Equal(t, tt.expected, Select(tt.cte))
		})
	}
	assert.Equal(t, "quoted-printable", QuotedPrintable.String())
}
