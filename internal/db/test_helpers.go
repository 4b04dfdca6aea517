package db

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestEmail creates a test email with default values
func CreateTestEmail(subject, sender, body string) *Email {
	slug := strings.ReplaceAll(strings.ToLower(subject), " ", "-")
	return &Email{
		FilePath:        fmt.Sprintf("test/%s.eml", slug),
		SourcePath:      fmt.Sprintf("test/%s.eml", slug),
		MboxIndex:       -1,
		MessageID:       fmt.Sprintf("<%s@test.com>", slug),
		Subject:         subject,
		Sender:          sender,
		SenderName:      "Test Sender",
		Recipients:      "recipient@test.com",
		Date:            NewNullTime(time.Now()),
		BodyTextPreview: body,
		DecodeOK:        true,
		PartCount:       1,
		FileSize:        int64(len(body)),
	}
}

// CreateTestEmailWithDate creates a test email with a specific date
func CreateTestEmailWithDate(subject, sender, body string, date time.Time) *Email {
	email := CreateTestEmail(subject, sender, body)
	email.Date = NewNullTime(date)
	return email
}

// CreateTestParts returns a text part and n attachments
func CreateTestParts(n int) []*Part {
	parts := []*Part{{Path: "0", ContentType: "text/plain; charset=utf-8", Charset: "utf-8", Kind: "Text", Size: 12}}
	for i := 0; i < n; i++ {
		parts = append(parts, &Part{
			Path:         fmt.Sprintf("%d", i+1),
			ContentType:  "application/pdf",
			Name:         fmt.Sprintf("file%d.pdf", i+1),
			Kind:         "PDF",
			Size:         1024,
			IsAttachment: true,
		})
	}
	return parts
}

// InsertTestEmails inserts multiple test emails and returns them
func InsertTestEmails(t *testing.T, db *DB, emails []*Email) []*Email {
	t.Helper()

	for i, email := range emails {
		id, err := db.InsertEmail(email)
		if err != nil {
			t.Fatalf("Failed to insert test email %d: %v", i, err)
		}
		emails[i].ID = id
	}

	return emails
}
