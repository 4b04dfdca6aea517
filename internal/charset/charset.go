// Package charset maps the charset names found in mail headers to text codecs.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	gmcharset "github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

func init() {
	// Register additional charsets that are commonly used in emails
	gmcharset.RegisterEncoding("windows-1252", charmap.Windows1252)
	gmcharset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	gmcharset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	gmcharset.RegisterEncoding("latin1", charmap.ISO8859_1)
}

// Codec decodes bytes in a particular character set to a UTF-8 string.
type Codec interface {
	Name() string
	Decode(b []byte) (string, error)
}

// UnsupportedCharsetError reports a charset name no codec could be found for.
type UnsupportedCharsetError struct {
	Charset string
	Err     error
}

func (e *UnsupportedCharsetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported charset %q: %v", e.Charset, e.Err)
	}
	return fmt.Sprintf("unsupported charset %q", e.Charset)
}

func (e *UnsupportedCharsetError) Unwrap() error { return e.Err }

// IsUnsupportedCharset reports whether err (or an error it wraps) is an
// UnsupportedCharsetError.
func IsUnsupportedCharset(err error) bool {
	var target *UnsupportedCharsetError
	return errors.As(err, &target)
}

var (
	// UTF8 is the codec assumed when no charset is declared.
	UTF8 Codec = encodingCodec{name: "utf-8", enc: unicode.UTF8}
	// ASCII maps every byte above 0x7f to '?'.
	ASCII Codec = asciiCodec{}
	// Latin1 is the fallback for unresolvable Windows code pages.
	Latin1 Codec = encodingCodec{name: "iso-8859-1", enc: charmap.ISO8859_1}
	// ShiftJIS is also used for ISO-2022-JP, which legacy clients mislabel.
	ShiftJIS Codec = encodingCodec{name: "shift_jis", enc: japanese.ShiftJIS}
)

// codePages holds the numeric code pages understood after a "Windows-" prefix.
var codePages = map[int64]Codec{
	37:    encodingCodec{"ibm037", charmap.CodePage037},
	437:   encodingCodec{"ibm437", charmap.CodePage437},
	850:   encodingCodec{"ibm850", charmap.CodePage850},
	852:   encodingCodec{"ibm852", charmap.CodePage852},
	855:   encodingCodec{"ibm855", charmap.CodePage855},
	858:   encodingCodec{"ibm00858", charmap.CodePage858},
	860:   encodingCodec{"ibm860", charmap.CodePage860},
	862:   encodingCodec{"ibm862", charmap.CodePage862},
	863:   encodingCodec{"ibm863", charmap.CodePage863},
	865:   encodingCodec{"ibm865", charmap.CodePage865},
	866:   encodingCodec{"ibm866", charmap.CodePage866},
	874:   encodingCodec{"windows-874", charmap.Windows874},
	932:   ShiftJIS,
	936:   encodingCodec{"gbk", simplifiedchinese.GBK},
	949:   encodingCodec{"euc-kr", korean.EUCKR},
	950:   encodingCodec{"big5", traditionalchinese.Big5},
	1047:  encodingCodec{"ibm1047", charmap.CodePage1047},
	1140:  encodingCodec{"ibm01140", charmap.CodePage1140},
	1200:  encodingCodec{"utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	1201:  encodingCodec{"utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	1250:  encodingCodec{"windows-1250", charmap.Windows1250},
	1251:  encodingCodec{"windows-1251", charmap.Windows1251},
	1252:  encodingCodec{"windows-1252", charmap.Windows1252},
	1253:  encodingCodec{"windows-1253", charmap.Windows1253},
	1254:  encodingCodec{"windows-1254", charmap.Windows1254},
	1255:  encodingCodec{"windows-1255", charmap.Windows1255},
	1256:  encodingCodec{"windows-1256", charmap.Windows1256},
	1257:  encodingCodec{"windows-1257", charmap.Windows1257},
	1258:  encodingCodec{"windows-1258", charmap.Windows1258},
	10000: encodingCodec{"macintosh", charmap.Macintosh},
	10007: encodingCodec{"x-mac-cyrillic", charmap.MacintoshCyrillic},
	20127: ASCII,
	20866: encodingCodec{"koi8-r", charmap.KOI8R},
	21866: encodingCodec{"koi8-u", charmap.KOI8U},
	20932: encodingCodec{"euc-jp", japanese.EUCJP},
	28591: Latin1,
	28592: encodingCodec{"iso-8859-2", charmap.ISO8859_2},
	28593: encodingCodec{"iso-8859-3", charmap.ISO8859_3},
	28594: encodingCodec{"iso-8859-4", charmap.ISO8859_4},
	28595: encodingCodec{"iso-8859-5", charmap.ISO8859_5},
	28596: encodingCodec{"iso-8859-6", charmap.ISO8859_6},
	28597: encodingCodec{"iso-8859-7", charmap.ISO8859_7},
	28598: encodingCodec{"iso-8859-8", charmap.ISO8859_8},
	28599: encodingCodec{"iso-8859-9", charmap.ISO8859_9},
	28603: encodingCodec{"iso-8859-13", charmap.ISO8859_13},
	28605: encodingCodec{"iso-8859-15", charmap.ISO8859_15},
	50220: encodingCodec{"iso-2022-jp", japanese.ISO2022JP},
	51932: encodingCodec{"euc-jp", japanese.EUCJP},
	51949: encodingCodec{"euc-kr", korean.EUCKR},
	52936: encodingCodec{"hz-gb-2312", simplifiedchinese.HZGB2312},
	54936: encodingCodec{"gb18030", simplifiedchinese.GB18030},
	65001: UTF8,
}

// Resolve returns the codec for a charset name as found in a Content-Type
// parameter or an encoded word.
//
// An empty name resolves to UTF-8. "ISO-2022-JP" resolves to Shift-JIS.
// "Windows-XXXX" parses XXXX as a hexadecimal code page number and falls back
// to Latin-1 when that code page is unknown, so "Windows-1252" (0x1252) is
// Latin-1 while "Windows-4E4" is windows-1252. Any name containing "ascii"
// resolves to 7-bit ASCII. Other names go through the generic lookup, which
// returns an *UnsupportedCharsetError for unknown names.
func Resolve(name string) (Codec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UTF8, nil
	}

	lower := strings.ToLower(name)
	switch {
	case lower == "iso-2022-jp":
		return ShiftJIS, nil
	case strings.HasPrefix(lower, "windows-"):
		cp, err := strconv.ParseInt(name[len("windows-"):], 16, 64)
		if err != nil {
			return Latin1, nil
		}
		if c, ok := codePages[cp]; ok {
			return c, nil
		}
		return Latin1, nil
	case strings.Contains(lower, "ascii"):
		return ASCII, nil
	}

	return lookup(lower)
}

// ResolveOrUTF8 is Resolve with the lenient fallback used when decoding text:
// an unsupported charset silently becomes UTF-8.
func ResolveOrUTF8(name string) Codec {
	c, err := Resolve(name)
	if err != nil {
		return UTF8
	}
	return c
}

// lookup consults the go-message registry first, then the IANA index.
func lookup(name string) (Codec, error) {
	if name == "utf-8" || name == "utf8" {
		return UTF8, nil
	}
	if _, err := gmcharset.Reader(name, bytes.NewReader(nil)); err == nil {
		return readerCodec{name: name}, nil
	}

	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
	}
	if err != nil {
		return nil, &UnsupportedCharsetError{Charset: name, Err: err}
	}
	if enc == nil {
		return nil, &UnsupportedCharsetError{Charset: name}
	}
	return encodingCodec{name: name, enc: enc}, nil
}

type encodingCodec struct {
	name string
	enc  encoding.Encoding
}

func (c encodingCodec) Name() string { return c.name }

func (c encodingCodec) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", c.name, err)
	}
	return string(out), nil
}

// readerCodec decodes through the go-message charset registry.
type readerCodec struct {
	name string
}

func (c readerCodec) Name() string { return c.name }

func (c readerCodec) Decode(b []byte) (string, error) {
	r, err := gmcharset.Reader(c.name, bytes.NewReader(b))
	if err != nil {
		return "", &UnsupportedCharsetError{Charset: c.name, Err: err}
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", c.name, err)
	}
	return string(out), nil
}

type asciiCodec struct{}

func (asciiCodec) Name() string { return "us-ascii" }

func (asciiCodec) Decode(b []byte) (string, error) {
	out := make([]byte, len(b))
	for i, c := range b {
		if c > 0x7f {
			c = '?'
		}
		out[i] = c
	}
	return string(out), nil
}
