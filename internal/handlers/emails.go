package handlers

import (
	"net/http"
	"regexp"

	"github.com/felo/emldecode/internal/address"
	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/eml"
	"github.com/felo/emldecode/internal/indexer"
)

// EmailListResponse is the body of GET /api/emails
type EmailListResponse struct {
	Emails []*db.Email `json:"emails"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListEmails returns indexed emails, newest first
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 500)
	offset := intParam(r, "offset", 0, 0)

	total, err := h.db.CountEmails()
	if err != nil {
		h.logger.Error("Failed to count emails", "error", err)
		http.Error(w, "Failed to get email count", http.StatusInternalServerError)
		return
	}

	emails, err := h.db.ListEmails(limit, offset)
	if err != nil {
		h.logger.Error("Failed to list emails", "error", err)
		http.Error(w, "Failed to load emails", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, EmailListResponse{Emails: emails, Total: total, Limit: limit, Offset: offset})
}

// PartNode is one part of the decoded tree
type PartNode struct {
	Path         string      `json:"path"`
	ContentType  string      `json:"content_type"`
	Kind         string      `json:"kind,omitempty"`
	Charset      string      `json:"charset,omitempty"`
	Name         string      `json:"name,omitempty"`
	IsAttachment bool        `json:"is_attachment"`
	Children     []*PartNode `json:"children,omitempty"`
}

// EmailResponse is the body of GET /api/emails/{id}
type EmailResponse struct {
	Email    *db.Email              `json:"email"`
	Headers  map[string][]string    `json:"headers"`
	From     *address.EmailAddress  `json:"from,omitempty"`
	To       []address.EmailAddress `json:"to"`
	Cc       []address.EmailAddress `json:"cc"`
	Parts    []*PartNode            `json:"parts"`
	DecodeOK bool                   `json:"decode_ok"`
	Error    string                 `json:"error,omitempty"`
}

func partTree(parts []*eml.Part) []*PartNode {
	nodes := make([]*PartNode, 0, len(parts))
	for _, p := range parts {
		nodes = append(nodes, &PartNode{
			Path:         p.Path(),
			ContentType:  p.ContentType(),
			Kind:         string(p.Kind()),
			Charset:      p.Charset(),
			Name:         p.ContentName(),
			IsAttachment: indexer.IsAttachment(p),
			Children:     partTree(p.Subparts()),
		})
	}
	return nodes
}

// GetEmail decodes an email from its source and returns headers and part tree
func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	email, m, ok := h.messageFromRequest(w, r)
	if !ok {
		return
	}
	defer m.Close()

	resp := EmailResponse{
		Email:    email,
		Headers:  m.Header(),
		To:       m.To(),
		Cc:       m.Cc(),
		Parts:    partTree(m.Parts()),
		DecodeOK: m.OK(),
	}
	if from, ok := m.From(); ok {
		resp.From = &from
	}
	if err := m.Err(); err != nil {
		resp.Error = err.Error()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListParts returns the flattened part layout. With ?type= only parts whose
// content type starts with the value are returned; with ?match= the content
// type must match the regular expression.
func (h *Handlers) ListParts(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("type")
	match := r.URL.Query().Get("match")

	if prefix == "" && match == "" {
		email, ok := h.emailFromRequest(w, r)
		if !ok {
			return
		}
		parts, err := h.db.GetPartsByEmailID(email.ID)
		if err != nil {
			h.logger.Error("Failed to load parts", "id", email.ID, "error", err)
			http.Error(w, "Failed to load parts", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, parts)
		return
	}

	var re *regexp.Regexp
	if match != "" {
		var err error
		if re, err = regexp.Compile(match); err != nil {
			http.Error(w, "Invalid match expression", http.StatusBadRequest)
			return
		}
	}

	_, m, ok := h.messageFromRequest(w, r)
	if !ok {
		return
	}
	defer m.Close()

	var found []*eml.Part
	if re != nil {
		found = m.PartsWithContentTypeRegex(re)
	} else {
		found = m.PartsWithContentType(prefix)
	}

	out := make([]*db.Part, 0, len(found))
	for _, p := range found {
		out = append(out, indexer.PartRecord(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Dump renders the decoded message as indented text
func (h *Handlers) Dump(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.messageFromRequest(w, r)
	if !ok {
		return
	}
	defer m.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(m.DebugString()))
}

// Stats returns index statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", "error", err)
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
