package eml

import (
	"sync"

	"github.com/felo/emldecode/internal/charset"
	"github.com/felo/emldecode/internal/params"
	"github.com/felo/emldecode/internal/transfer"
)

// partRef locates a part inside the message that owns it.
type partRef struct {
	msg   *Message
	index int
}

// Part is a node of the MIME tree. A part is either a container with
// subparts or a leaf with raw content. Parts are built by the decoder and
// read-only afterwards, apart from the lazily computed values below.
type Part struct {
	ref      partRef
	path     string
	header   Header
	content  string
	subparts []*Part
	boundary string

	charsetOnce sync.Once
	charset     string

	nameOnce sync.Once
	name     string

	textOnce sync.Once
	text     string
	textErr  error

	bytesOnce sync.Once
	bytes     []byte
	bytesErr  error
}

// Path is the dotted position of the part in the tree, e.g. "0.1.2".
func (p *Part) Path() string { return p.path }

// Index is the position of the part in document order.
func (p *Part) Index() int { return p.ref.index }

// Message returns the message the part belongs to.
func (p *Part) Message() *Message { return p.ref.msg }

// Header returns the part's own headers.
func (p *Part) Header() Header { return p.header }

// Boundary returns the part's own multipart boundary, or "".
func (p *Part) Boundary() string { return p.boundary }

// Subparts returns the children of a container part.
func (p *Part) Subparts() []*Part { return p.subparts }

// IsContainer reports whether the part holds subparts.
func (p *Part) IsContainer() bool { return len(p.subparts) > 0 }

// RawContent returns the still transfer-encoded body of a leaf part. Lines
// are CRLF terminated.
func (p *Part) RawContent() string { return p.content }

// HasContent reports whether there is a body without decoding it.
func (p *Part) HasContent() bool { return p.content != "" }

// Get returns the first value of the named header. When the part has no
// such header, the message's value is returned instead.
func (p *Part) Get(name string) string {
	if v := p.header.Get(name); v != "" {
		return v
	}
	if m := p.ref.msg; m != nil {
		return m.Get(name)
	}
	return ""
}

// ContentType returns the effective Content-Type value.
func (p *Part) ContentType() string { return p.Get("content-type") }

// TransferEncoding returns the effective Content-Transfer-Encoding value.
func (p *Part) TransferEncoding() string { return p.Get("content-transfer-encoding") }

// Charset returns the charset parameter of the content type, or "".
func (p *Part) Charset() string {
	p.charsetOnce.Do(func() {
		p.charset, _ = params.Charset(p.ContentType())
	})
	return p.charset
}

// ContentName returns the name parameter of the content type, or "".
func (p *Part) ContentName() string {
	p.nameOnce.Do(func() {
		p.name, _ = params.Name(p.ContentType())
	})
	return p.name
}

// Bytes returns the body with the transfer encoding removed. Malformed
// base64 yields an error matching transfer.ErrInvalidEncoding.
func (p *Part) Bytes() ([]byte, error) {
	p.bytesOnce.Do(func() {
		switch transfer.Select(p.TransferEncoding()) {
		case transfer.Base64:
			p.bytes, p.bytesErr = transfer.DecodeBase64(p.content)
		case transfer.QuotedPrintable:
			p.bytes = transfer.DecodeQuotedPrintableBytes(p.content)
		default:
			p.bytes = []byte(p.content)
		}
	})
	return p.bytes, p.bytesErr
}

// Text returns the body decoded to UTF-8 using the declared charset. An
// unknown charset is read as UTF-8. Content without a transfer encoding
// and without a charset parameter is returned as is.
func (p *Part) Text() (string, error) {
	p.textOnce.Do(func() {
		enc := transfer.Select(p.TransferEncoding())
		cs := p.Charset()
		if enc == transfer.Identity && cs == "" {
			p.text = p.content
			return
		}

		b, err := p.Bytes()
		if err != nil {
			p.textErr = err
			return
		}
		p.text, p.textErr = charset.ResolveOrUTF8(cs).Decode(b)
	})
	return p.text, p.textErr
}

// release drops everything the part references.
func (p *Part) release() {
	p.ref = partRef{}
	p.header = nil
	p.content = ""
	p.subparts = nil
	p.text, p.textErr = "", nil
	p.bytes, p.bytesErr = nil, nil
}

func (p *Part) empty() bool {
	return len(p.header) == 0 && p.content == "" && len(p.subparts) == 0
}
