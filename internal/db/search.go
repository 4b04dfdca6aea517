package db

import (
	"fmt"
	"strings"
	"unicode"
)

// EmailSearchResult represents a search result with snippet
type EmailSearchResult struct {
	Email
	Snippet string `db:"snippet" json:"snippet"`
}

// matchQuery turns user input into an FTS5 query where every term is a
// quoted prefix: `john doe` -> `"john"* "doe"*`. Terms without a letter or
// digit produce no tokens and are dropped.
func matchQuery(query string) string {
	var quoted []string
	for _, term := range strings.Fields(query) {
		if strings.IndexFunc(term, isWordRune) < 0 {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(quoted, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// SearchEmails performs a full-text search on emails using FTS5
func (db *DB) SearchEmails(query string, limit, offset int) ([]*EmailSearchResult, error) {
	match := matchQuery(query)
	if match == "" {
		// If no query, just return recent emails
		emails, err := db.ListEmails(limit, offset)
		if err != nil {
			return nil, err
		}

		results := make([]*EmailSearchResult, len(emails))
		for i, email := range emails {
			results[i] = &EmailSearchResult{
				Email:   *email,
				Snippet: truncateText(email.BodyTextPreview, 200),
			}
		}
		return results, nil
	}

	results := []*EmailSearchResult{}
	err := db.Select(&results, `
		SELECT
			e.id, e.file_path, e.source_path, e.mbox_index, e.message_id, e.subject,
			e.sender, e.sender_name, e.recipients, e.cc, e.date, e.body_text_preview,
			e.decode_ok, e.part_count, e.attachment_count, e.file_size,
			e.indexed_at, e.updated_at,
			snippet(emails_fts, 4, '<mark>', '</mark>', '...', 32) AS snippet
		FROM emails e
		JOIN emails_fts ON e.id = emails_fts.rowid
		WHERE emails_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, match, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	return results, nil
}

// truncateText truncates text to maxLen bytes without splitting a UTF-8 sequence
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// SearchFilters narrows a search beyond the full-text query
type SearchFilters struct {
	Query          string
	Sender         string
	HasAttachments bool
	DateFrom       string
	DateTo         string
}

// SearchEmailsWithFilters performs a search with additional filters and pagination
func (db *DB) SearchEmailsWithFilters(f SearchFilters, limit, offset int) ([]*EmailSearchResult, error) {
	var conditions []string
	var args []interface{}

	match := matchQuery(f.Query)
	fts := match != ""
	if fts {
		conditions = append(conditions, "emails_fts MATCH ?")
		args = append(args, match)
	}
	if f.Sender != "" {
		conditions = append(conditions, "(e.sender LIKE ? OR e.sender_name LIKE ?)")
		args = append(args, "%"+f.Sender+"%", "%"+f.Sender+"%")
	}
	if f.HasAttachments {
		conditions = append(conditions, "e.attachment_count > 0")
	}
	if f.DateFrom != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, f.DateTo)
	}

	sqlQuery := `
		SELECT
			e.id, e.file_path, e.source_path, e.mbox_index, e.message_id, e.subject,
			e.sender, e.sender_name, e.recipients, e.cc, e.date, e.body_text_preview,
			e.decode_ok, e.part_count, e.attachment_count, e.file_size,
			e.indexed_at, e.updated_at`
	if fts {
		sqlQuery += `, snippet(emails_fts, 4, '<mark>', '</mark>', '...', 32) AS snippet
		FROM emails e
		JOIN emails_fts ON e.id = emails_fts.rowid`
	} else {
		sqlQuery += `, '' AS snippet
		FROM emails e`
	}

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	if fts {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY e.date DESC, e.id DESC"
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	results := []*EmailSearchResult{}
	if err := db.Select(&results, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to search with filters: %w", err)
	}

	for _, r := range results {
		if r.Snippet == "" {
			r.Snippet = truncateText(r.BodyTextPreview, 200)
		}
	}

	return results, nil
}
