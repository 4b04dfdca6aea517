package eml

import (
	"strings"
)

const (
	debugTop    = "_______________________________"
	debugMiddle = "+-----------------------------+"
	debugBottom = "L_____________________________|"
)

// DebugString renders the headers and the part tree, with the decoded text
// of textual parts, indented by two spaces per level.
func (m *Message) DebugString() string {
	return m.DebugStringIndent("  ")
}

// DebugStringIndent is DebugString with a custom indent. Each nesting level
// doubles the indent.
func (m *Message) DebugStringIndent(indent string) string {
	var sb strings.Builder
	writeHeaders(&sb, m.Header(), indent)
	sb.WriteString("\n")
	writeParts(&sb, m.Parts(), m.Boundary(), indent+indent)
	return sb.String()
}

// DebugString renders the part and its descendants.
func (p *Part) DebugString() string {
	var sb strings.Builder
	p.writeDebug(&sb, "")
	return sb.String()
}

func (p *Part) writeDebug(sb *strings.Builder, indent string) {
	sb.WriteString(indent + debugTop + "\n")
	writeHeaders(sb, p.header, indent)
	if len(p.subparts) > 0 {
		writeParts(sb, p.subparts, p.boundary, indent+indent)
	}
	sb.WriteString("\n")
	sb.WriteString(indent + debugMiddle + "\n")

	ct := p.ContentType()
	if ct == "" || strings.HasPrefix(strings.ToLower(ct), "text/") {
		text, err := p.Text()
		if err != nil {
			sb.WriteString(indent + "[" + err.Error() + "]\n")
		} else {
			sb.WriteString(text)
		}
	}
	sb.WriteString(indent + debugBottom + "\n")
}

func writeHeaders(sb *strings.Builder, h Header, indent string) {
	for _, k := range h.Keys() {
		for _, v := range h[k] {
			sb.WriteString(indent + k + ": " + v + "\n")
		}
	}
}

func writeParts(sb *strings.Builder, parts []*Part, boundary, indent string) {
	for _, p := range parts {
		if boundary != "" {
			sb.WriteString("\n--" + boundary + "\n")
		}
		p.writeDebug(sb, indent)
	}
	if boundary != "" {
		sb.WriteString("\n--" + boundary + "\n")
	}
}
