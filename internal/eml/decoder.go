package eml

import (
	"errors"
	"io"
	"strings"

	"github.com/felo/emldecode/internal/params"
)

// markerKind tells an opening delimiter line from a closing one. Both end
// the current part the same way.
type markerKind int

const (
	noMarker markerKind = iota
	delimiter
	closing
)

// marker classifies line against boundary b.
func marker(line, b string) markerKind {
	if b == "" || !strings.HasPrefix(line, "--"+b) {
		return noMarker
	}
	if strings.HasPrefix(line[len(b)+2:], "--") {
		return closing
	}
	return delimiter
}

// decoder walks the input once, line by line. Every method stops at the
// first read error and returns it; whatever was attached to the tree by
// then stays attached.
type decoder struct {
	msg *Message
	lr  *lineReader
}

func (d *decoder) decodeMessage() error {
	m := d.msg

	hb := newHeaderBuilder()
	for {
		line, err := d.lr.next()
		if err != nil {
			hb.flush()
			m.header = hb.header
			m.boundary, _ = params.Boundary(m.header.Get("content-type"))
			return eofOK(err)
		}
		if line == "" {
			break
		}
		hb.line(line)
	}
	hb.flush()
	m.header = hb.header
	m.boundary, _ = params.Boundary(m.header.Get("content-type"))

	// Blank lines between the header block and the body are dropped.
	var line string
	for {
		var err error
		line, err = d.lr.next()
		if err != nil {
			return eofOK(err)
		}
		if line != "" {
			break
		}
	}

	// Without a boundary, or when the body does not open with a delimiter,
	// everything left is one unstructured part.
	if m.boundary == "" || marker(line, m.boundary) == noMarker {
		return d.singlePart([]string{line})
	}

	for {
		p, err := d.decodePart(m.boundary, "")
		if p != nil {
			m.parts = append(m.parts, p)
		}
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
	}
}

// singlePart stores lines plus the rest of the input as the only part.
func (d *decoder) singlePart(lines []string) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString("\r\n")
	}
	err := d.readBody(&sb, "")

	p := d.msg.newPart()
	p.content = sb.String()
	d.msg.parts = append(d.msg.parts, p)
	return err
}

// decodePart reads one part delimited by boundary. A nil part with a nil
// error means there are no more parts at this level: either the input
// ended or a line starting with the outer boundary was seen while reading
// headers.
func (d *decoder) decodePart(boundary, outer string) (*Part, error) {
	hb := newHeaderBuilder()
	for {
		line, err := d.lr.next()
		if err != nil {
			hb.flush()
			return d.headersOnly(hb.header), eofOK(err)
		}
		if marker(line, outer) != noMarker {
			return nil, nil
		}
		if line == "" {
			break
		}
		hb.line(line)
	}
	hb.flush()

	line, err := d.lr.next()
	if err != nil {
		return d.headersOnly(hb.header), eofOK(err)
	}
	if marker(line, outer) != noMarker {
		return nil, nil
	}

	p := d.msg.newPart()
	p.header = hb.header

	if own, ok := params.Boundary(p.header.Get("content-type")); ok {
		p.boundary = own
		return d.decodeContainer(p, line, boundary)
	}

	var sb strings.Builder
	if marker(line, boundary) == noMarker {
		sb.WriteString(line)
		sb.WriteString("\r\n")
		err = d.readBody(&sb, boundary)
	}
	p.content = sb.String()
	return keep(p), err
}

// decodeContainer skips the preamble of a multipart part, starting at line,
// and decodes its children. boundary is the boundary enclosing p.
func (d *decoder) decodeContainer(p *Part, line, boundary string) (*Part, error) {
	for marker(line, p.boundary) == noMarker {
		var err error
		line, err = d.lr.next()
		if err != nil {
			return keep(p), eofOK(err)
		}
	}

	for {
		c, err := d.decodePart(p.boundary, boundary)
		if c != nil {
			p.subparts = append(p.subparts, c)
		}
		if err != nil {
			return keep(p), err
		}
		if c == nil {
			return keep(p), nil
		}
	}
}

// readBody appends lines, each terminated by CRLF, until a line starting
// with the boundary marker or the end of input. The marker line is
// consumed.
func (d *decoder) readBody(sb *strings.Builder, boundary string) error {
	for {
		line, err := d.lr.next()
		if err != nil {
			return eofOK(err)
		}
		if marker(line, boundary) != noMarker {
			return nil
		}
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}
}

// headersOnly builds a part for a header block cut short by the end of
// input, or returns nil when there are no headers.
func (d *decoder) headersOnly(h Header) *Part {
	if len(h) == 0 {
		return nil
	}
	p := d.msg.newPart()
	p.header = h
	return p
}

func keep(p *Part) *Part {
	if p.empty() {
		return nil
	}
	return p
}

func eofOK(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
