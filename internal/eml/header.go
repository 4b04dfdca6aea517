package eml

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/felo/emldecode/internal/header"
)

// Header is a header multimap keyed by lower-cased header name. Values keep
// their original case and the order in which they appeared.
type Header map[string][]string

// Add appends a value under the lower-cased name.
func (h Header) Add(name, value string) {
	key := strings.ToLower(name)
	h[key] = append(h[key], value)
}

// Get returns the first value for name, or "" if there is none.
func (h Header) Get(name string) string {
	if v := h[strings.ToLower(name)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns every value stored for name.
func (h Header) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Has reports whether at least one value is stored for name.
func (h Header) Has(name string) bool {
	return len(h[strings.ToLower(name)]) > 0
}

// Keys returns the header names in sorted order.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Match reports whether any value of name matches re.
func (h Header) Match(name string, re *regexp.Regexp) bool {
	for _, v := range h.Values(name) {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// headerBuilder accumulates one header block line by line.
type headerBuilder struct {
	header Header
	name   string
	value  string
	open   bool
}

func newHeaderBuilder() *headerBuilder {
	return &headerBuilder{header: Header{}}
}

// line feeds one non-blank header line.
func (b *headerBuilder) line(line string) {
	if unicode.IsSpace(rune(line[0])) {
		// folded continuation
		if b.open {
			b.value += header.DecodeLine(strings.TrimLeftFunc(line, unicode.IsSpace))
		}
		return
	}

	b.flush()
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return
	}
	b.name = strings.TrimSpace(line[:colon])
	b.value = header.DecodeLine(strings.TrimLeftFunc(line[colon+1:], unicode.IsSpace))
	b.open = true
}

// flush stores the pending header if both name and value are non-empty.
func (b *headerBuilder) flush() {
	if b.open && b.name != "" && b.value != "" {
		b.header.Add(b.name, b.value)
	}
	b.name, b.value, b.open = "", "", false
}
