package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felo/emldecode/internal/db"
)

// SearchResponse is the body of GET /api/search
type SearchResponse struct {
	Query   string                  `json:"query"`
	Results []*db.EmailSearchResult `json:"results"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// Search handles full-text search with optional sender, attachment and
// date filters
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(r, "limit", 50, 500)
	offset := intParam(r, "offset", 0, 0)

	filters := db.SearchFilters{
		Query:  q.Get("q"),
		Sender: q.Get("sender"),
	}
	if v := q.Get("attachments"); v != "" {
		has, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid attachments filter", http.StatusBadRequest)
			return
		}
		filters.HasAttachments = has
	}

	for _, d := range []struct {
		name string
		dst  *string
	}{{"from", &filters.DateFrom}, {"to", &filters.DateTo}} {
		v := q.Get(d.name)
		if v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		*d.dst = v
	}

	var (
		results []*db.EmailSearchResult
		err     error
	)
	if filters.Sender == "" && !filters.HasAttachments && filters.DateFrom == "" && filters.DateTo == "" {
		results, err = h.db.SearchEmails(filters.Query, limit, offset)
	} else {
		results, err = h.db.SearchEmailsWithFilters(filters, limit, offset)
	}
	if err != nil {
		h.logger.Error("Search failed", "query", filters.Query, "error", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*db.EmailSearchResult{}
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{Query: filters.Query, Results: results, Limit: limit, Offset: offset})
}
