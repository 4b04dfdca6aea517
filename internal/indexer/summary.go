package indexer

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/felo/emldecode/internal/address"
	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/eml"
)

// stripTags reduces HTML bodies to text for the preview
var stripTags = bluemonday.StrictPolicy()

// Summarize builds the stored record and part layout of a decoded message.
// Location fields (FilePath, SourcePath, MboxIndex) are left to the caller.
func Summarize(m *eml.Message, previewBytes int) (*db.Email, []*db.Part) {
	email := &db.Email{
		MessageID: strings.TrimSpace(m.Get("message-id")),
		Subject:   m.Subject(),
		DecodeOK:  m.OK(),
		PartCount: m.PartCount(),
		FileSize:  m.Filesize(),
	}

	if from, ok := m.From(); ok {
		email.Sender = from.Address
		email.SenderName = from.Name
	} else {
		email.Sender = m.Get("from")
	}
	email.Recipients = joinAddresses(m.To())
	email.CC = joinAddresses(m.Cc())

	if date, err := m.Date(); err == nil {
		email.Date = db.NewNullTime(date)
	}

	var parts []*db.Part
	m.Walk(func(p *eml.Part) bool {
		dp := PartRecord(p)
		if dp.IsAttachment {
			email.AttachmentCount++
		}
		parts = append(parts, dp)
		return true
	})

	email.BodyTextPreview = truncate(Preview(m), previewBytes)
	return email, parts
}

// PartRecord describes one part for storage. Size is the decoded length,
// falling back to the raw length when the body is malformed; containers
// have no size of their own.
func PartRecord(p *eml.Part) *db.Part {
	dp := &db.Part{
		Path:         p.Path(),
		ContentType:  p.ContentType(),
		Charset:      p.Charset(),
		Name:         p.ContentName(),
		Kind:         string(p.Kind()),
		IsAttachment: IsAttachment(p),
	}
	if !p.IsContainer() {
		if b, err := p.Bytes(); err == nil {
			dp.Size = int64(len(b))
		} else {
			dp.Size = int64(len(p.RawContent()))
		}
	}
	return dp
}

// IsAttachment reports whether a part is meant to be saved rather than shown
func IsAttachment(p *eml.Part) bool {
	if p.IsContainer() {
		return false
	}
	disposition := strings.ToLower(strings.TrimSpace(p.Header().Get("content-disposition")))
	if strings.HasPrefix(disposition, "attachment") {
		return true
	}
	return p.ContentName() != "" && !strings.HasPrefix(disposition, "inline")
}

// Preview returns the text of the first text/plain part, else the first
// text/html part with its markup removed
func Preview(m *eml.Message) string {
	for _, p := range m.PartsWithContentType("text/plain") {
		if IsAttachment(p) {
			continue
		}
		if text, err := p.Text(); err == nil {
			return strings.TrimSpace(text)
		}
	}

	for _, p := range m.PartsWithContentType("text/html") {
		if IsAttachment(p) {
			continue
		}
		if text, err := p.Text(); err == nil {
			return strings.Join(strings.Fields(html.UnescapeString(stripTags.Sanitize(text))), " ")
		}
	}

	// A message without any content type is plain text
	if m.ContentType() == "" && len(m.Parts()) == 1 {
		if text, err := m.Parts()[0].Text(); err == nil {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func joinAddresses(addrs []address.EmailAddress) string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return strings.Join(out, ", ")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
