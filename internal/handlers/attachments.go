package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/felo/emldecode/internal/eml"
	"github.com/felo/emldecode/internal/transfer"
)

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	// Drop any directory part, whichever separator the sender used
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if filename == "." || filename == "/" {
		filename = ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	if cleaned == "" {
		cleaned = "download.bin"
	}

	return cleaned
}

// PartContent serves the decoded body of one part. HTML is sanitized when
// configured, other text is served as UTF-8, and everything else is sent
// as a download.
func (h *Handlers) PartContent(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.messageFromRequest(w, r)
	if !ok {
		return
	}
	defer m.Close()

	path := chi.URLParam(r, "path")
	part, err := m.PartAt(path)
	if errors.Is(err, eml.ErrPartNotFound) {
		http.Error(w, "Part not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Invalid part path", http.StatusBadRequest)
		return
	}
	if part.IsContainer() {
		http.Error(w, "Part is a container", http.StatusBadRequest)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")

	switch {
	case part.HasContentTypePrefix("text/html"):
		text, err := part.Text()
		if !h.partError(w, path, err) {
			return
		}
		if h.cfg == nil || h.cfg.SanitizeHTML {
			text = h.policy.Sanitize(text)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(text))

	case part.HasContentTypePrefix("text/") || part.ContentType() == "":
		text, err := part.Text()
		if !h.partError(w, path, err) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))

	default:
		data, err := part.Bytes()
		if !h.partError(w, path, err) {
			return
		}

		name := part.ContentName()
		if name == "" {
			name = "part-" + path + ".bin"
		}

		contentType, _, err := mime.ParseMediaType(part.ContentType())
		if err != nil {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{
				"filename": sanitizeFilename(name),
			}))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

// partError writes the response for a failed body decode and reports
// whether serving can continue
func (h *Handlers) partError(w http.ResponseWriter, path string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, transfer.ErrInvalidEncoding) {
		h.logger.Warn("Malformed part body", "path", path, "error", err)
		http.Error(w, "Part body is not validly encoded", http.StatusUnprocessableEntity)
		return false
	}
	h.logger.Error("Failed to decode part", "path", path, "error", err)
	http.Error(w, "Failed to decode part", http.StatusInternalServerError)
	return false
}
