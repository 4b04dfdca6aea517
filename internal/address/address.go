// Package address parses the loose address lists found in From, To and Cc
// headers.
package address

import (
	"fmt"
	"strings"
)

// EmailAddress is a mailbox with an optional display name.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String renders the address as `"Name" <address>`, or just the address
// when there is no display name.
func (a EmailAddress) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%q <%s>", a.Name, a.Address)
}

// ParseList splits s on ',', ';' and '/' outside double quotes and parses
// each segment. Segments that do not hold a usable address are dropped.
func ParseList(s string) []EmailAddress {
	var out []EmailAddress
	for _, seg := range split(s) {
		if a, ok := Parse(seg); ok {
			out = append(out, a)
		}
	}
	return out
}

// Parse reads a single `Name <address>` or bare address segment.
func Parse(s string) (EmailAddress, bool) {
	open, end := -1, strings.LastIndexByte(s, '>')
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && inQuote {
			i++
			continue
		}
		if c == '"' {
			inQuote = !inQuote
			continue
		}
		if c == '<' && !inQuote {
			open = i
			break
		}
	}

	var a EmailAddress
	if open >= 0 && end > open {
		a.Name = unquote(strings.TrimSpace(s[:open]))
		a.Address = strings.TrimSpace(s[open+1 : end])
	} else {
		a.Address = strings.TrimSpace(s)
	}

	if a.Address == "" || strings.IndexByte(a.Address, '@') <= 0 {
		return EmailAddress{}, false
	}
	return a, true
}

// split cuts s at top level separators, keeping quoted spans intact.
func split(s string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inQuote:
			i++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ',' || c == ';' || c == '/'):
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start <= len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, `\"`, `"`)
		s = strings.ReplaceAll(s, `\\`, `\`)
	}
	return strings.TrimSpace(s)
}
