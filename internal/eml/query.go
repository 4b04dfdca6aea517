package eml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MatchHeader reports whether any value of the named header matches re.
func (m *Message) MatchHeader(name string, re *regexp.Regexp) bool {
	return m.Header().Match(name, re)
}

// HasContentTypePrefix reports whether a Content-Type value starts with
// prefix, ignoring case.
func (m *Message) HasContentTypePrefix(prefix string) bool {
	return hasContentTypePrefix(m.Header(), prefix)
}

// HasContentTypeSuffix reports whether a trimmed Content-Type value ends
// with suffix, ignoring case.
func (m *Message) HasContentTypeSuffix(suffix string) bool {
	return hasContentTypeSuffix(m.Header(), suffix)
}

// PartsWithContentType returns every part whose content type starts with
// prefix, depth first.
func (m *Message) PartsWithContentType(prefix string) []*Part {
	return collect(m.Parts(), func(p *Part) bool { return p.HasContentTypePrefix(prefix) })
}

// PartsMatchingHeader returns every part with a value of the named header
// matching re, depth first.
func (m *Message) PartsMatchingHeader(name string, re *regexp.Regexp) []*Part {
	return collect(m.Parts(), func(p *Part) bool { return p.MatchHeader(name, re) })
}

// PartsWithContentTypeRegex returns every part whose content type matches re.
func (m *Message) PartsWithContentTypeRegex(re *regexp.Regexp) []*Part {
	return m.PartsMatchingHeader("content-type", re)
}

// Walk visits every part in document order. Returning false from fn skips
// the part's children.
func (m *Message) Walk(fn func(*Part) bool) {
	for _, p := range m.Parts() {
		p.Walk(fn)
	}
}

// PartAt resolves a dotted path such as "0.1.2".
func (m *Message) PartAt(path string) (*Part, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPartNotFound)
	}
	level := m.Parts()
	var p *Part
	for _, seg := range strings.Split(path, ".") {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(level) {
			return nil, fmt.Errorf("%w: %s", ErrPartNotFound, path)
		}
		p = level[i]
		level = p.subparts
	}
	return p, nil
}

// MatchHeader reports whether any value of the named header matches re.
// Parts without the header defer to the message.
func (p *Part) MatchHeader(name string, re *regexp.Regexp) bool {
	if p.header.Has(name) {
		return p.header.Match(name, re)
	}
	if m := p.ref.msg; m != nil {
		return m.MatchHeader(name, re)
	}
	return false
}

// HasContentTypePrefix reports whether a Content-Type value starts with
// prefix, ignoring case.
func (p *Part) HasContentTypePrefix(prefix string) bool {
	if !p.header.Has("content-type") {
		if m := p.ref.msg; m != nil {
			return m.HasContentTypePrefix(prefix)
		}
		return false
	}
	return hasContentTypePrefix(p.header, prefix)
}

// HasContentTypeSuffix reports whether a trimmed Content-Type value ends
// with suffix, ignoring case.
func (p *Part) HasContentTypeSuffix(suffix string) bool {
	if !p.header.Has("content-type") {
		if m := p.ref.msg; m != nil {
			return m.HasContentTypeSuffix(suffix)
		}
		return false
	}
	return hasContentTypeSuffix(p.header, suffix)
}

// PartsWithContentType returns every descendant whose content type starts
// with prefix, depth first.
func (p *Part) PartsWithContentType(prefix string) []*Part {
	return collect(p.subparts, func(c *Part) bool { return c.HasContentTypePrefix(prefix) })
}

// PartsMatchingHeader returns every descendant with a header value of name
// matching re, depth first.
func (p *Part) PartsMatchingHeader(name string, re *regexp.Regexp) []*Part {
	return collect(p.subparts, func(c *Part) bool { return c.MatchHeader(name, re) })
}

// Kind labels a part by content type.
type Kind string

const (
	KindNone   Kind = ""
	KindHTML   Kind = "HTML"
	KindText   Kind = "Text"
	KindImage  Kind = "Image"
	KindPDF    Kind = "PDF"
	KindMIME   Kind = "MIME"
	KindRFC822 Kind = "RFC822"
	KindMP4    Kind = "MP4"
)

var (
	pdfType = regexp.MustCompile(`(?i)application/.*pdf`)
	mp4Type = regexp.MustCompile(`(?i)application/.*mp4`)
)

// Kind returns the label for the part's content type, first match wins.
func (p *Part) Kind() Kind {
	switch {
	case p.HasContentTypePrefix("text/html"):
		return KindHTML
	case p.HasContentTypePrefix("text/"):
		return KindText
	case p.HasContentTypePrefix("image/"):
		return KindImage
	case p.MatchHeader("content-type", pdfType):
		return KindPDF
	case p.HasContentTypePrefix("multipart/"):
		return KindMIME
	case p.HasContentTypePrefix("message/rfc822"):
		return KindRFC822
	case p.MatchHeader("content-type", mp4Type):
		return KindMP4
	}
	return KindNone
}

// Walk calls fn for p and every descendant in document order. Returning
// false from fn skips the part's children.
func (p *Part) Walk(fn func(*Part) bool) {
	if !fn(p) {
		return
	}
	for _, c := range p.subparts {
		c.Walk(fn)
	}
}

func collect(parts []*Part, match func(*Part) bool) []*Part {
	var out []*Part
	for _, c := range parts {
		if match(c) {
			out = append(out, c)
		}
		if len(c.subparts) > 0 {
			out = append(out, collect(c.subparts, match)...)
		}
	}
	return out
}

func hasContentTypePrefix(h Header, prefix string) bool {
	prefix = strings.ToLower(prefix)
	for _, v := range h.Values("content-type") {
		if strings.HasPrefix(strings.ToLower(v), prefix) {
			return true
		}
	}
	return false
}

func hasContentTypeSuffix(h Header, suffix string) bool {
	suffix = strings.ToLower(suffix)
	for _, v := range h.Values("content-type") {
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(v)), suffix) {
			return true
		}
	}
	return false
}
