package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/felo/emldecode/internal/eml"
)

// ErrEntryNotFound is returned when an mbox archive has fewer messages than asked for
var ErrEntryNotFound = errors.New("mbox entry not found")

// Entry identifies one stored message: a .eml file, or the MboxIndex-th
// message of an mbox archive
type Entry struct {
	Key       string // "dir/a.eml" or "dir/box.mbox#3"
	Source    string // file relative to the emails folder
	MboxIndex int    // -1 for .eml files
}

// EntryKey returns the stored key of the n-th message in an mbox archive
func EntryKey(source string, n int) string {
	return source + "#" + strconv.Itoa(n)
}

// ParseEntryKey splits a stored key back into its source file and mbox index
func ParseEntryKey(key string) Entry {
	if i := strings.LastIndexByte(key, '#'); i > 0 {
		if n, err := strconv.Atoi(key[i+1:]); err == nil && n >= 0 {
			return Entry{Key: key, Source: key[:i], MboxIndex: n}
		}
	}
	return Entry{Key: key, Source: key, MboxIndex: -1}
}

// Load opens and decodes a stored message. path is the file on disk; for
// mbox archives mboxIndex selects the message, otherwise it must be negative.
// A decode failure is reported through the returned message, not as an error.
func Load(ctx context.Context, path string, mboxIndex int, logger *slog.Logger) (*eml.Message, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if mboxIndex < 0 {
		m, err := eml.Open(path, eml.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		m.Decode(ctx)
		return m, nil
	}

	raw, err := readMboxEntry(path, mboxIndex)
	if err != nil {
		return nil, err
	}
	m := eml.FromBytes(raw, eml.WithLogger(logger))
	m.Decode(ctx)
	return m, nil
}

func readMboxEntry(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", eml.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to open mbox: %w", err)
	}
	defer f.Close()

	reader := mboxlib.NewReader(f)
	for i := 0; ; i++ {
		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s#%d", ErrEntryNotFound, path, n)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mbox entry %d: %w", i, err)
		}
		if i == n {
			raw, err := io.ReadAll(msgReader)
			if err != nil {
				return nil, fmt.Errorf("failed to read mbox entry %d: %w", i, err)
			}
			return raw, nil
		}
	}
}
