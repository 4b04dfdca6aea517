package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NewNullTime creates a valid NullTime from a time.Time
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// timeFormats lists the layouts SQLite and the driver write timestamps in
var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 -0700", // Go's time.String() format with duplicate timezone
	"2006-01-02 15:04:05 -0700 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC1123Z,
	time.RFC1123,
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case []byte:
		return nt.Scan(string(v))
	case string:
		var t time.Time
		var err error
		for _, format := range timeFormats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// MarshalJSON renders an RFC 3339 timestamp, or null
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time.Format(time.RFC3339))
}

// Email is one indexed message: a .eml file or one entry of an mbox archive
type Email struct {
	ID              int64    `db:"id" json:"id"`
	FilePath        string   `db:"file_path" json:"file_path"`
	SourcePath      string   `db:"source_path" json:"source_path"`
	MboxIndex       int      `db:"mbox_index" json:"mbox_index"`
	MessageID       string   `db:"message_id" json:"message_id"`
	Subject         string   `db:"subject" json:"subject"`
	Sender          string   `db:"sender" json:"sender"`
	SenderName      string   `db:"sender_name" json:"sender_name"`
	Recipients      string   `db:"recipients" json:"recipients"`
	CC              string   `db:"cc" json:"cc"`
	Date            NullTime `db:"date" json:"date"`
	BodyTextPreview string   `db:"body_text_preview" json:"preview"`
	DecodeOK        bool     `db:"decode_ok" json:"decode_ok"`
	PartCount       int      `db:"part_count" json:"part_count"`
	AttachmentCount int      `db:"attachment_count" json:"attachment_count"`
	FileSize        int64    `db:"file_size" json:"file_size"`
	IndexedAt       NullTime `db:"indexed_at" json:"indexed_at"`
	UpdatedAt       NullTime `db:"updated_at" json:"updated_at"`
}

// IsMboxEntry reports whether the message was taken from an mbox archive
func (e *Email) IsMboxEntry() bool {
	return e.MboxIndex >= 0
}

// Part is the stored layout of one MIME part
type Part struct {
	ID           int64  `db:"id" json:"-"`
	EmailID      int64  `db:"email_id" json:"-"`
	Path         string `db:"path" json:"path"`
	ContentType  string `db:"content_type" json:"content_type"`
	Charset      string `db:"charset" json:"charset,omitempty"`
	Name         string `db:"name" json:"name,omitempty"`
	Kind         string `db:"kind" json:"kind,omitempty"`
	Size         int64  `db:"size" json:"size"`
	IsAttachment bool   `db:"is_attachment" json:"is_attachment"`
}

const emailColumns = `
	id, file_path, source_path, mbox_index, message_id, subject, sender, sender_name,
	recipients, cc, date, body_text_preview, decode_ok, part_count, attachment_count,
	file_size, indexed_at, updated_at`

const insertEmailSQL = `
	INSERT INTO emails (
		file_path, source_path, mbox_index, message_id, subject, sender, sender_name,
		recipients, cc, date, body_text_preview, decode_ok, part_count, attachment_count, file_size
	) VALUES (
		:file_path, :source_path, :mbox_index, :message_id, :subject, :sender, :sender_name,
		:recipients, :cc, :date, :body_text_preview, :decode_ok, :part_count, :attachment_count, :file_size
	)`

const insertPartSQL = `
	INSERT INTO parts (email_id, path, content_type, charset, name, kind, size, is_attachment)
	VALUES (:email_id, :path, :content_type, :charset, :name, :kind, :size, :is_attachment)`

func insertEmail(ext sqlx.Ext, email *Email) (int64, error) {
	result, err := sqlx.NamedExec(ext, insertEmailSQL, email)
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}
	return result.LastInsertId()
}

func insertParts(ext sqlx.Ext, emailID int64, parts []*Part) error {
	for _, p := range parts {
		p.EmailID = emailID
		if _, err := sqlx.NamedExec(ext, insertPartSQL, p); err != nil {
			return fmt.Errorf("failed to insert part %s: %w", p.Path, err)
		}
	}
	return nil
}

// InsertEmail inserts a new email record
func (db *DB) InsertEmail(email *Email) (int64, error) {
	return insertEmail(db.DB, email)
}

// InsertParts stores the part layout of an email in one transaction
func (db *DB) InsertParts(emailID int64, parts []*Part) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertParts(tx, emailID, parts); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveEmail inserts an email and its parts atomically and sets email.ID
func (db *DB) SaveEmail(ctx context.Context, email *Email, parts []*Part) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertEmail(tx, email)
	if err != nil {
		return err
	}
	if err := insertParts(tx, id, parts); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit email: %w", err)
	}

	email.ID = id
	return nil
}

// EmailExists checks if an email with the given file path exists
func (db *DB) EmailExists(filePath string) (bool, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM emails WHERE file_path = ?", filePath)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// SourceIndexed reports whether any message from the given source file is stored
func (db *DB) SourceIndexed(sourcePath string) (bool, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM emails WHERE source_path = ?", sourcePath)
	if err != nil {
		return false, fmt.Errorf("failed to check source existence: %w", err)
	}
	return count > 0, nil
}

// GetEmailByID retrieves an email by ID
func (db *DB) GetEmailByID(id int64) (*Email, error) {
	email := &Email{}
	err := db.Get(email, "SELECT "+emailColumns+" FROM emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return email, nil
}

// GetEmailByPath retrieves an email by its stored file path
func (db *DB) GetEmailByPath(filePath string) (*Email, error) {
	email := &Email{}
	err := db.Get(email, "SELECT "+emailColumns+" FROM emails WHERE file_path = ?", filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %q: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return email, nil
}

// ListEmails retrieves emails with pagination, newest first
func (db *DB) ListEmails(limit, offset int) ([]*Email, error) {
	emails := []*Email{}
	err := db.Select(&emails, `
		SELECT `+emailColumns+`
		FROM emails
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// CountEmails returns the total number of emails
func (db *DB) CountEmails() (int, error) {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM emails"); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

// GetPartsByEmailID retrieves the parts of an email in document order
func (db *DB) GetPartsByEmailID(emailID int64) ([]*Part, error) {
	parts := []*Part{}
	err := db.Select(&parts, `
		SELECT id, email_id, path, content_type, charset, name, kind, size, is_attachment
		FROM parts
		WHERE email_id = ?
		ORDER BY id
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parts: %w", err)
	}
	return parts, nil
}

// EmailsExistBatch checks which of the given file paths are already indexed
func (db *DB) EmailsExistBatch(filePaths []string) (map[string]bool, error) {
	result := make(map[string]bool, len(filePaths))
	if len(filePaths) == 0 {
		return result, nil
	}

	// Stay below SQLite's bound parameter limit
	const chunkSize = 500
	for start := 0; start < len(filePaths); start += chunkSize {
		end := min(start+chunkSize, len(filePaths))

		query, args, err := sqlx.In("SELECT file_path FROM emails WHERE file_path IN (?)", filePaths[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build existence query: %w", err)
		}

		var found []string
		if err := db.Select(&found, db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to check email existence: %w", err)
		}
		for _, p := range found {
			result[p] = true
		}
	}

	return result, nil
}

// GetUniqueSenders returns sender addresses ordered by how often they occur
func (db *DB) GetUniqueSenders(limit int) ([]string, error) {
	senders := []string{}
	err := db.Select(&senders, `
		SELECT sender
		FROM emails
		WHERE sender != ''
		GROUP BY sender
		ORDER BY COUNT(*) DESC, sender ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique senders: %w", err)
	}
	return senders, nil
}

// Stats holds database statistics
type Stats struct {
	TotalEmails     int      `db:"total_emails" json:"total_emails"`
	WithAttachments int      `db:"with_attachments" json:"with_attachments"`
	DecodeFailures  int      `db:"decode_failures" json:"decode_failures"`
	TotalParts      int      `db:"total_parts" json:"total_parts"`
	LastIndexed     NullTime `db:"last_indexed" json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	err := db.Get(stats, `
		SELECT
			COUNT(*) AS total_emails,
			COALESCE(SUM(attachment_count > 0), 0) AS with_attachments,
			COALESCE(SUM(decode_ok = 0), 0) AS decode_failures,
			COALESCE(SUM(part_count), 0) AS total_parts,
			MAX(indexed_at) AS last_indexed
		FROM emails
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// DeleteEmail removes an email; its parts go with it
func (db *DB) DeleteEmail(id int64) error {
	result, err := db.Exec("DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("email %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSource removes every message indexed from the given source file
func (db *DB) DeleteSource(sourcePath string) (int64, error) {
	result, err := db.Exec("DELETE FROM emails WHERE source_path = ?", sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete source: %w", err)
	}
	return result.RowsAffected()
}
