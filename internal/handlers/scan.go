package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felo/emldecode/internal/indexer"
)

// ScanProgress holds the current scan progress state
type ScanProgress struct {
	mu          sync.RWMutex
	isScanning  bool
	current     int
	total       int
	currentFile string
	result      *indexer.IndexResult
	err         error
	lastUpdate  time.Time
	clients     []chan ProgressEvent
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string      `json:"type"` // "progress", "complete", "error"
	Data interface{} `json:"data"`
}

// ScanStatus is a snapshot of a running or finished scan
type ScanStatus struct {
	Scanning   bool                 `json:"scanning"`
	Current    int                  `json:"current"`
	Total      int                  `json:"total"`
	File       string               `json:"file"`
	Result     *indexer.IndexResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	LastUpdate time.Time            `json:"last_update"`
}

func newScanProgress() *ScanProgress {
	return &ScanProgress{}
}

// start marks a scan as running; false if one already is
func (sp *ScanProgress) start() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.isScanning {
		return false
	}
	sp.isScanning = true
	sp.current = 0
	sp.total = 0
	sp.currentFile = ""
	sp.result = nil
	sp.err = nil
	sp.lastUpdate = time.Now()
	return true
}

// Status returns a snapshot of the scan state
func (sp *ScanProgress) Status() ScanStatus {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.statusLocked()
}

func (sp *ScanProgress) statusLocked() ScanStatus {
	s := ScanStatus{
		Scanning:   sp.isScanning,
		Current:    sp.current,
		Total:      sp.total,
		File:       sp.currentFile,
		Result:     sp.result,
		LastUpdate: sp.lastUpdate,
	}
	if sp.err != nil {
		s.Error = sp.err.Error()
	}
	return s
}

func (sp *ScanProgress) update(current, total int, file string) {
	sp.mu.Lock()
	sp.current = current
	sp.total = total
	sp.currentFile = file
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	sp.broadcast("progress")
}

func (sp *ScanProgress) finish(result *indexer.IndexResult, err error) {
	sp.mu.Lock()
	sp.isScanning = false
	sp.result = result
	sp.err = err
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	if err != nil {
		sp.broadcast("error")
		return
	}
	sp.broadcast("complete")
}

// broadcast sends the current state to every connected client. Slow
// clients miss updates rather than block the scan.
func (sp *ScanProgress) broadcast(eventType string) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	event := ProgressEvent{Type: eventType, Data: sp.statusLocked()}
	for _, client := range sp.clients {
		select {
		case client <- event:
		default:
		}
	}
}

func (sp *ScanProgress) subscribe() (chan ProgressEvent, ScanStatus) {
	ch := make(chan ProgressEvent, 10)
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.clients = append(sp.clients, ch)
	return ch, sp.statusLocked()
}

func (sp *ScanProgress) unsubscribe(ch chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, c := range sp.clients {
		if c == ch {
			sp.clients = append(sp.clients[:i], sp.clients[i+1:]...)
			break
		}
	}
}

// Scan starts indexing the configured folder in the background
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	if !h.scan.start() {
		http.Error(w, "Scan already in progress", http.StatusConflict)
		return
	}

	idx := indexer.NewIndexer(h.db, h.cfg.EmailsPath, h.logger).
		WithConcurrency(h.cfg.Workers).
		WithPreviewBytes(h.cfg.PreviewBytes)

	go func() {
		result, err := idx.IndexWithProgress(h.ctx, h.scan.update)
		if err != nil {
			h.logger.Error("Scan failed", "path", h.cfg.EmailsPath, "error", err)
		}
		h.scan.finish(result, err)
	}()

	h.writeJSON(w, http.StatusAccepted, h.scan.Status())
}

// ScanProgressSSE streams scan progress as Server-Sent Events until the
// scan ends or the client goes away
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	clientChan, status := h.scan.subscribe()
	defer h.scan.unsubscribe(clientChan)

	if !status.Scanning {
		eventType := "complete"
		if status.Error != "" {
			eventType = "error"
		}
		h.sendSSE(w, flusher, eventType, status)
		return
	}
	h.sendSSE(w, flusher, "progress", status)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-clientChan:
			h.sendSSE(w, flusher, event.Type, event.Data)
			if event.Type == "complete" || event.Type == "error" {
				return
			}
		}
	}
}

// sendSSE sends an SSE message to the client
func (h *Handlers) sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
