// Package eml decodes .eml files into a header multimap and a tree of MIME
// parts whose content is decoded lazily.
package eml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/felo/emldecode/internal/address"
)

var (
	// ErrFileNotFound is returned by Open for a missing file. It also
	// matches fs.ErrNotExist.
	ErrFileNotFound = fmt.Errorf("eml file not found: %w", fs.ErrNotExist)
	// ErrClosed is reported when decoding a closed message.
	ErrClosed = errors.New("message is closed")
	// ErrPartNotFound is returned by PartAt for an unknown path.
	ErrPartNotFound = errors.New("part not found")
)

// Message is a decoded .eml file. It is populated once by Decode and
// read-only afterwards until Close.
type Message struct {
	path   string
	data   []byte
	size   int64
	logger *slog.Logger

	decodedSize atomic.Int64

	// mu guards the decode and everything it produces.
	mu      sync.Mutex
	decoded bool
	ok      bool
	closed  bool
	err     error

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	header   Header
	boundary string
	parts    []*Part
	arena    []*Part
}

// Option configures a Message.
type Option func(*Message)

// WithLogger sets the logger used to report decode failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Message) {
		m.logger = logger
	}
}

// Open prepares the file at path for decoding. Nothing is read until
// Decode is called.
func Open(path string, opts ...Option) (*Message, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	m := newMessage(opts)
	m.path = path
	m.size = info.Size()
	return m, nil
}

// FromBytes prepares an in-memory message for decoding.
func FromBytes(b []byte, opts ...Option) *Message {
	m := newMessage(opts)
	m.data = b
	m.size = int64(len(b))
	return m
}

// DecodeFile opens and decodes the file at path.
func DecodeFile(ctx context.Context, path string, opts ...Option) (*Message, error) {
	m, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if !m.Decode(ctx) {
		return m, fmt.Errorf("failed to decode %s: %w", path, m.Err())
	}
	return m, nil
}

func newMessage(opts []Option) *Message {
	m := &Message{header: Header{}}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Decode reads and decodes the message. Only the first call does any work;
// later and concurrent calls return the same result. Cancelling ctx, or
// calling Stop, aborts the read and the decode reports failure. Parts
// decoded before a failure stay available.
func (m *Message) Decode(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.decoded {
		return m.ok
	}
	if m.closed {
		m.err = ErrClosed
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	m.setCancel(cancel)
	defer func() {
		m.setCancel(nil)
		cancel()
	}()

	err := m.decode(ctx)
	m.index()
	m.decoded = true
	m.ok = err == nil
	m.err = err
	if err != nil {
		m.logger.Warn("Decode failed", "path", m.path, "error", err)
	}
	return m.ok
}

// DecodeAsync runs Decode on a new goroutine and delivers its result.
func (m *Message) DecodeAsync(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	go func() {
		ch <- m.Decode(ctx)
		close(ch)
	}()
	return ch
}

func (m *Message) decode(ctx context.Context) error {
	rc, err := m.open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// Unblock a pending read as soon as the decode is cancelled.
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer stop()

	d := &decoder{
		msg: m,
		lr:  newLineReader(ctx, rc, &m.decodedSize),
	}
	return d.decodeMessage()
}

func (m *Message) open() (io.ReadCloser, error) {
	if m.path == "" {
		return io.NopCloser(bytes.NewReader(m.data)), nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func (m *Message) setCancel(cancel context.CancelFunc) {
	m.cancelMu.Lock()
	m.cancel = cancel
	m.cancelMu.Unlock()
}

// Stop interrupts an in-flight decode. It is a no-op otherwise.
func (m *Message) Stop() {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// Close stops any in-flight decode and releases the header map and the part
// tree. The message cannot be decoded again. Parts obtained earlier must not
// be read while Close runs.
func (m *Message) Close() error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.arena {
		p.release()
	}
	m.header = Header{}
	m.boundary = ""
	m.parts = nil
	m.arena = nil
	m.data = nil
	m.decoded, m.ok = false, false
	m.closed = true
	return nil
}

// Path returns the file path, or "" for in-memory messages.
func (m *Message) Path() string { return m.path }

// Filesize returns the size of the input in bytes.
func (m *Message) Filesize() int64 { return m.size }

// DecodedSize returns the number of characters consumed so far. It may be
// read while a decode is running.
func (m *Message) DecodedSize() int64 { return m.decodedSize.Load() }

// Progress returns DecodedSize / Filesize, capped at 1.
func (m *Message) Progress() float64 {
	if m.size <= 0 {
		if m.Decoded() {
			return 1
		}
		return 0
	}
	p := float64(m.DecodedSize()) / float64(m.size)
	if p > 1 {
		p = 1
	}
	return p
}

// Decoded reports whether a decode has completed, successfully or not.
func (m *Message) Decoded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decoded
}

// OK reports whether the decode completed without error.
func (m *Message) OK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ok
}

// Err returns the error that made the decode fail, if any.
func (m *Message) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Header returns the top-level header multimap. Like the other accessors it
// waits for a running Decode or Close to finish.
func (m *Message) Header() Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header
}

// Boundary returns the top-level multipart boundary, or "".
func (m *Message) Boundary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundary
}

// Parts returns the top-level parts.
func (m *Message) Parts() []*Part {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parts
}

// PartCount returns the number of parts at every level.
func (m *Message) PartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.arena)
}

// Get returns the first value of the named top-level header.
func (m *Message) Get(name string) string { return m.Header().Get(name) }

// ContentType returns the top-level Content-Type value.
func (m *Message) ContentType() string { return m.Get("content-type") }

// Subject returns the decoded Subject header.
func (m *Message) Subject() string { return m.Get("subject") }

// SubjectHasPrefix reports whether the subject starts with prefix,
// ignoring case. An empty subject never matches.
func (m *Message) SubjectHasPrefix(prefix string) bool {
	s := m.Subject()
	return s != "" && strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

// From returns the sender address.
func (m *Message) From() (address.EmailAddress, bool) {
	return address.Parse(m.Get("from"))
}

// To returns the addresses of the first To header.
func (m *Message) To() []address.EmailAddress {
	return address.ParseList(m.Get("to"))
}

// Cc returns the addresses of the first Cc header.
func (m *Message) Cc() []address.EmailAddress {
	return address.ParseList(m.Get("cc"))
}

// Date parses the Date header.
func (m *Message) Date() (time.Time, error) {
	v := m.Get("date")
	if v == "" {
		return time.Time{}, errors.New("no date header")
	}
	var h mail.Header
	h.Set("Date", v)
	return h.Date()
}

func (m *Message) newPart() *Part {
	return &Part{
		ref:    partRef{msg: m},
		header: Header{},
	}
}

// index numbers the decoded tree in document order and assigns the dotted
// paths used by PartAt.
func (m *Message) index() {
	m.arena = m.arena[:0]
	var visit func(parts []*Part, prefix string)
	visit = func(parts []*Part, prefix string) {
		for i, p := range parts {
			p.ref.index = len(m.arena)
			p.path = prefix + strconv.Itoa(i)
			m.arena = append(m.arena, p)
			visit(p.subparts, p.path+".")
		}
	}
	visit(m.parts, "")
}
