package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// File extensions picked up by the scanner
const (
	ExtEML  = ".eml"
	ExtMbox = ".mbox"
)

// Scanner scans directories for .eml files and mbox archives
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// IsMbox reports whether path names an mbox archive
func IsMbox(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ExtMbox)
}

func isMailFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ExtEML || ext == ExtMbox
}

// Scan recursively scans for mail files and returns paths relative to rootPath,
// with forward slashes, in lexical order
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	// Get absolute path of root for reliable relative path calculation
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if d.IsDir() || !isMailFile(path) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		// Forward slashes keep stored paths portable between systems
		files = append(files, filepath.ToSlash(relPath))

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}

// ScanWithCallback scans for mail files and calls the callback for each file found
func (s *Scanner) ScanWithCallback(callback func(path string, index, total int) error) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	total := len(files)
	for i, file := range files {
		if err := callback(file, i+1, total); err != nil {
			return fmt.Errorf("callback error for file %s: %w", file, err)
		}
	}

	return nil
}

// CountFiles counts the .eml and .mbox files below the root
func (s *Scanner) CountFiles() (int, error) {
	count := 0

	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isMailFile(path) {
			count++
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}
