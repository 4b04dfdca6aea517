package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/eml"
	"github.com/felo/emldecode/internal/scanner"
)

// DefaultPreviewBytes caps the stored text preview
const DefaultPreviewBytes = 10000

// Indexer handles email indexing operations
type Indexer struct {
	db           *db.DB
	scanner      *scanner.Scanner
	logger       *slog.Logger
	concurrency  int // Number of concurrent workers
	previewBytes int
}

// NewIndexer creates a new indexer over the mail folder at emailsPath
func NewIndexer(database *db.DB, emailsPath string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:           database,
		scanner:      scanner.NewScanner(emailsPath),
		logger:       logger,
		concurrency:  runtime.NumCPU() * 2, // 2x CPUs for I/O parallelism
		previewBytes: DefaultPreviewBytes,
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// WithPreviewBytes sets the maximum size of the stored text preview
func (idx *Indexer) WithPreviewBytes(n int) *Indexer {
	if n < 0 {
		n = 0
	}
	idx.previewBytes = n
	return idx
}

// IndexResult contains statistics about an indexing operation. TotalFound
// counts files; the other counters count messages, so one mbox archive
// can contribute many.
type IndexResult struct {
	TotalFound   int      `json:"total_found"`
	NewIndexed   int      `json:"new_indexed"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	DecodeErrors int      `json:"decode_errors"`
	FailedFiles  []string `json:"failed_files"`
}

// ProgressFunc is called once per processed file
type ProgressFunc func(current, total int, filePath string)

// IndexAll scans and indexes all mail files using concurrent workers
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return idx.IndexWithProgress(ctx, nil)
}

// IndexWithProgress indexes all files and reports progress via a callback
func (idx *Indexer) IndexWithProgress(ctx context.Context, progress ProgressFunc) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	root, err := filepath.Abs(idx.scanner.GetRootPath())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve emails path: %w", err)
	}

	result := &IndexResult{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	idx.logger.Info("Indexing started", "root", root, "files", len(files), "workers", idx.concurrency)

	// Create channels for work distribution
	fileChan := make(chan string, len(files))
	resultChan := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.indexWorker(ctx, &wg, root, fileChan, resultChan)
	}

	for _, file := range files {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processedCount := 0
	for res := range resultChan {
		processedCount++
		if progress != nil {
			progress(processedCount, result.TotalFound, res.filePath)
		}

		result.NewIndexed += res.indexed
		result.Skipped += res.skipped
		result.Failed += len(res.failed)
		result.DecodeErrors += res.decodeErrors
		result.FailedFiles = append(result.FailedFiles, res.failed...)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("indexing interrupted: %w", err)
	}

	if err := idx.db.SetSetting(db.SettingEmailsPath, root); err != nil {
		return result, err
	}
	idx.db.SetEmailsPath(root)

	idx.logger.Info("Indexing complete",
		"new", result.NewIndexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"decode_errors", result.DecodeErrors)

	return result, nil
}

type fileResult struct {
	filePath     string
	indexed      int
	skipped      int
	decodeErrors int
	failed       []string
}

func (r *fileResult) add(key string, s status) {
	switch s {
	case statusIndexed:
		r.indexed++
	case statusDecodeError:
		r.indexed++
		r.decodeErrors++
	case statusSkipped:
		r.skipped++
	case statusFailed:
		r.failed = append(r.failed, key)
	}
}

type status int

const (
	statusIndexed status = iota
	statusDecodeError
	statusSkipped
	statusFailed
)

// indexWorker processes files from the file channel
func (idx *Indexer) indexWorker(ctx context.Context, wg *sync.WaitGroup, root string, fileChan <-chan string, resultChan chan<- fileResult) {
	defer wg.Done()

	for relPath := range fileChan {
		res := fileResult{filePath: relPath}
		if ctx.Err() == nil {
			if scanner.IsMbox(relPath) {
				idx.processMbox(ctx, root, relPath, &res)
			} else {
				res.add(relPath, idx.processFile(ctx, root, relPath))
			}
		}
		resultChan <- res
	}
}

// processFile indexes a single .eml file
func (idx *Indexer) processFile(ctx context.Context, root, relPath string) status {
	exists, err := idx.db.EmailExists(relPath)
	if err != nil {
		idx.logger.Error("Failed to check email existence", "path", relPath, "error", err)
		return statusFailed
	}
	if exists {
		return statusSkipped
	}

	m, err := eml.Open(filepath.Join(root, filepath.FromSlash(relPath)), eml.WithLogger(idx.logger))
	if err != nil {
		idx.logger.Warn("Failed to open email", "path", relPath, "error", err)
		return statusFailed
	}
	defer m.Close()

	return idx.store(ctx, m, Entry{Key: relPath, Source: relPath, MboxIndex: -1})
}

// processMbox splits an mbox archive and indexes every message in it
func (idx *Indexer) processMbox(ctx context.Context, root, relPath string, res *fileResult) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		idx.logger.Warn("Failed to open mbox", "path", relPath, "error", err)
		res.add(relPath, statusFailed)
		return
	}
	defer f.Close()

	reader := mboxlib.NewReader(f)
	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return
		}

		entry := Entry{Key: EntryKey(relPath, n), Source: relPath, MboxIndex: n}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			idx.logger.Warn("Failed to read mbox entry", "path", entry.Key, "error", err)
			res.add(entry.Key, statusFailed)
			return
		}

		exists, err := idx.db.EmailExists(entry.Key)
		if err != nil {
			idx.logger.Error("Failed to check email existence", "path", entry.Key, "error", err)
			res.add(entry.Key, statusFailed)
			continue
		}
		if exists {
			res.add(entry.Key, statusSkipped)
			continue
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			idx.logger.Warn("Failed to read mbox entry", "path", entry.Key, "error", err)
			res.add(entry.Key, statusFailed)
			return
		}

		m := eml.FromBytes(raw, eml.WithLogger(idx.logger))
		res.add(entry.Key, idx.store(ctx, m, entry))
		m.Close()
	}
}

// store decodes m and saves its summary and part layout
func (idx *Indexer) store(ctx context.Context, m *eml.Message, entry Entry) status {
	ok := m.Decode(ctx)
	if !ok && ctx.Err() != nil {
		return statusFailed
	}

	email, parts := Summarize(m, idx.previewBytes)
	email.FilePath = entry.Key
	email.SourcePath = entry.Source
	email.MboxIndex = entry.MboxIndex

	if err := idx.db.SaveEmail(ctx, email, parts); err != nil {
		idx.logger.Error("Failed to store email", "path", entry.Key, "error", err)
		return statusFailed
	}

	if !ok {
		idx.logger.Warn("Stored partially decoded email", "path", entry.Key, "error", m.Err())
		return statusDecodeError
	}
	idx.logger.Debug("Indexed email", "path", entry.Key, "parts", len(parts))
	return statusIndexed
}
