package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/felo/emldecode/internal/config"
	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/eml"
	"github.com/felo/emldecode/internal/indexer"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db     *db.DB
	cfg    *config.Config
	logger *slog.Logger
	policy *bluemonday.Policy
	scan   *ScanProgress

	// ctx bounds background scans; cancelled on shutdown
	ctx context.Context
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if database != nil && cfg != nil && database.EmailsPath() == "" {
		database.SetEmailsPath(cfg.EmailsPath)
	}
	return &Handlers{
		db:     database,
		cfg:    cfg,
		logger: logger,
		policy: bluemonday.UGCPolicy(),
		scan:   newScanProgress(),
		ctx:    context.Background(),
	}
}

// WithContext sets the context background scans run under
func (h *Handlers) WithContext(ctx context.Context) *Handlers {
	h.ctx = ctx
	return h
}

// Routes builds the API router
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/emails", h.ListEmails)
		r.Get("/emails/{id}", h.GetEmail)
		r.Get("/emails/{id}/parts", h.ListParts)
		r.Get("/emails/{id}/parts/{path}", h.PartContent)
		r.Get("/emails/{id}/dump", h.Dump)
		r.Get("/search", h.Search)
		r.Get("/senders", h.AutocompleteSenders)
		r.Get("/stats", h.Stats)
		r.Post("/scan", h.Scan)
		r.Get("/scan/progress", h.ScanProgressSSE)
	})

	return r
}

// writeJSON encodes v with the given status code
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// intParam reads a positive integer query parameter, falling back to def
// and capping at max
func intParam(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// emailFromRequest loads the email named by the {id} URL parameter and
// writes the error response itself when that fails
func (h *Handlers) emailFromRequest(w http.ResponseWriter, r *http.Request) (*db.Email, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid email ID", http.StatusBadRequest)
		return nil, false
	}

	email, err := h.db.GetEmailByID(id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Email not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load email", "id", id, "error", err)
		http.Error(w, "Failed to load email", http.StatusInternalServerError)
		return nil, false
	}
	return email, true
}

// messageFromRequest decodes the source of the email named by {id}
func (h *Handlers) messageFromRequest(w http.ResponseWriter, r *http.Request) (*db.Email, *eml.Message, bool) {
	email, ok := h.emailFromRequest(w, r)
	if !ok {
		return nil, nil, false
	}

	path, err := h.db.ResolveEmailPath(email.SourcePath)
	if err != nil {
		h.logger.Warn("Rejected stored path", "id", email.ID, "path", email.SourcePath, "error", err)
		http.Error(w, "Invalid email path", http.StatusBadRequest)
		return nil, nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	m, err := indexer.Load(ctx, path, email.MboxIndex, h.logger)
	if errors.Is(err, eml.ErrFileNotFound) || errors.Is(err, indexer.ErrEntryNotFound) {
		http.Error(w, "Email source not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load email source", "id", email.ID, "error", err)
		http.Error(w, "Failed to load email", http.StatusInternalServerError)
		return nil, nil, false
	}
	return email, m, true
}
