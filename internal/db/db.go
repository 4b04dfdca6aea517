package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row looked up by key does not exist
	ErrNotFound = errors.New("not found")

	// ErrPathTraversal is returned when a stored path escapes the emails folder
	ErrPathTraversal = errors.New("path traversal detected")
)

// SettingEmailsPath stores the folder the index was built from
const SettingEmailsPath = "emails_path"

// DB wraps the sqlx handle with the folder stored paths are relative to
type DB struct {
	*sqlx.DB
	emailsPath atomic.Value // string
}

// Open opens a connection to the SQLite database and initializes the schema
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// The _time_format=sqlite parameter makes the driver write parseable timestamps
	dsn := dbPath + "?_time_format=sqlite"
	sqlDB, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{DB: sqlDB}

	if err := db.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates all tables, indexes, and triggers
func (db *DB) initSchema() error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.Get(&value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting sets or updates a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// SetEmailsPath sets the folder that relative source paths resolve against
func (db *DB) SetEmailsPath(path string) {
	db.emailsPath.Store(path)
}

// EmailsPath returns the folder set with SetEmailsPath
func (db *DB) EmailsPath() string {
	path, _ := db.emailsPath.Load().(string)
	return path
}

// ResolveEmailPath joins a stored relative path onto the emails folder.
// Absolute paths and paths leaving the folder are rejected.
func (db *DB) ResolveEmailPath(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) || filepath.VolumeName(relPath) != "" {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}

	base, err := filepath.Abs(db.EmailsPath())
	if err != nil {
		return "", fmt.Errorf("failed to resolve emails path: %w", err)
	}

	full := filepath.Join(base, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}

	return full, nil
}
