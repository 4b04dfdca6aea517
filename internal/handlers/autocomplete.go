package handlers

import (
	"net/http"
)

// AutocompleteSenders handles autocomplete requests for sender email addresses
func (h *Handlers) AutocompleteSenders(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 100, 1000)
	if limit == 0 {
		limit = 100
	}

	senders, err := h.db.GetUniqueSenders(limit)
	if err != nil {
		h.logger.Error("Failed to get unique senders", "error", err)
		http.Error(w, "Failed to load senders", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, senders)
}
