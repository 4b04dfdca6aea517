package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInsertEmail tests inserting an email into the database
func TestInsertEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Test body content")

	id, err := db.InsertEmail(email)

	require.NoError(t, err, "Should insert email without error")
	assert.Greater(t, id, int64(0), "Should return valid ID")

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, email.Subject, retrieved.Subject)
	assert.Equal(t, email.Sender, retrieved.Sender)
	assert.Equal(t, email.BodyTextPreview, retrieved.BodyTextPreview)
	assert.Equal(t, -1, retrieved.MboxIndex)
	assert.False(t, retrieved.IsMboxEntry())
	assert.True(t, retrieved.DecodeOK)
	assert.True(t, retrieved.IndexedAt.Valid, "indexed_at defaults to now")
}

// TestInsertEmail_DuplicatePath tests the unique file path constraint
func TestInsertEmail_DuplicatePath(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	_, err := db.InsertEmail(CreateTestEmail("Same", "a@test.com", "one"))
	require.NoError(t, err)

	_, err = db.InsertEmail(CreateTestEmail("Same", "b@test.com", "two"))
	assert.Error(t, err, "A file path can only be indexed once")
}

// TestEmailExists tests checking if an email exists by file path
func TestEmailExists(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Test body")
	email.FilePath = "archive/inbox.mbox#2"
	email.SourcePath = "archive/inbox.mbox"
	email.MboxIndex = 2

	exists, err := db.EmailExists(email.FilePath)
	require.NoError(t, err)
	assert.False(t, exists, "Email should not exist before insertion")

	_, err = db.InsertEmail(email)
	require.NoError(t, err)

	exists, err = db.EmailExists(email.FilePath)
	require.NoError(t, err)
	assert.True(t, exists, "Email should exist after insertion")

	indexed, err := db.SourceIndexed("archive/inbox.mbox")
	require.NoError(t, err)
	assert.True(t, indexed)

	exists, err = db.EmailExists("archive/inbox.mbox#3")
	require.NoError(t, err)
	assert.False(t, exists, "Different entry should not exist")
}

// TestEmailsExistBatch tests bulk existence checks
func TestEmailsExistBatch(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("One", "a@test.com", "x"),
		CreateTestEmail("Two", "b@test.com", "y"),
	})

	paths := []string{"test/one.eml", "test/two.eml", "test/three.eml"}
	for i := 0; i < 600; i++ {
		paths = append(paths, fmt.Sprintf("missing/%d.eml", i))
	}

	found, err := db.EmailsExistBatch(paths)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"test/one.eml": true, "test/two.eml": true}, found)

	found, err = db.EmailsExistBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// TestGetEmailByID tests retrieving an email by ID
func TestGetEmailByID(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Test body")
	email.CC = "cc@test.com"
	id, err := db.InsertEmail(email)
	require.NoError(t, err)

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	assert.Equal(t, id, retrieved.ID)
	assert.Equal(t, "cc@test.com", retrieved.CC)

	byPath, err := db.GetEmailByPath(email.FilePath)
	require.NoError(t, err)
	assert.Equal(t, id, byPath.ID)

	_, err = db.GetEmailByID(99999)
	assert.True(t, errors.Is(err, ErrNotFound), "Should return ErrNotFound for missing ID")

	_, err = db.GetEmailByPath("nope.eml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestListEmails tests listing emails with pagination
func TestListEmails(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		email := CreateTestEmailWithDate(fmt.Sprintf("Email %d", i), "sender@test.com", "body", base.Add(time.Duration(i)*time.Hour))
		_, err := db.InsertEmail(email)
		require.NoError(t, err)
	}

	emails, err := db.ListEmails(3, 0)
	require.NoError(t, err)
	require.Len(t, emails, 3)
	assert.Equal(t, "Email 4", emails[0].Subject, "Newest first")
	assert.Equal(t, "Email 2", emails[2].Subject)

	emails, err = db.ListEmails(3, 3)
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	emails, err = db.ListEmails(10, 10)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

// TestCountEmails tests counting total emails
func TestCountEmails(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	count, err := db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("A", "a@test.com", "a"),
		CreateTestEmail("B", "b@test.com", "b"),
		CreateTestEmail("C", "c@test.com", "c"),
	})

	count, err = db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestSaveEmail_WithParts tests atomic insertion of an email and its parts
func TestSaveEmail_WithParts(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("With Parts", "sender@test.com", "see attached")
	email.AttachmentCount = 2
	email.PartCount = 3

	err := db.SaveEmail(context.Background(), email, CreateTestParts(2))
	require.NoError(t, err)
	require.Greater(t, email.ID, int64(0))

	parts, err := db.GetPartsByEmailID(email.ID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, "0", parts[0].Path)
	assert.Equal(t, "utf-8", parts[0].Charset)
	assert.Equal(t, "1", parts[1].Path)
	assert.Equal(t, "file1.pdf", parts[1].Name)
	assert.True(t, parts[2].IsAttachment)
	assert.Equal(t, email.ID, parts[2].EmailID)
}

// TestSaveEmail_RollsBack tests that a failing part insert leaves nothing behind
func TestSaveEmail_RollsBack(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Broken", "sender@test.com", "body")
	parts := []*Part{{Path: "0"}, {Path: "0"}}

	err := db.SaveEmail(context.Background(), email, parts)
	require.Error(t, err, "Duplicate part paths violate the unique constraint")

	count, err := db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Zero(t, email.ID)
}

// TestInsertParts tests adding parts to an existing email
func TestInsertParts(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	id, err := db.InsertEmail(CreateTestEmail("Parts", "sender@test.com", "body"))
	require.NoError(t, err)

	require.NoError(t, db.InsertParts(id, CreateTestParts(1)))

	parts, err := db.GetPartsByEmailID(id)
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	parts, err = db.GetPartsByEmailID(id + 100)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

// TestDeleteEmail tests that deleting an email cascades to its parts and FTS row
func TestDeleteEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Disposable", "sender@test.com", "ephemeral words")
	require.NoError(t, db.SaveEmail(context.Background(), email, CreateTestParts(1)))

	require.NoError(t, db.DeleteEmail(email.ID))

	parts, err := db.GetPartsByEmailID(email.ID)
	require.NoError(t, err)
	assert.Empty(t, parts, "Parts should be removed with the email")

	results, err := db.SearchEmails("ephemeral", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results, "FTS row should be removed with the email")

	err = db.DeleteEmail(email.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestDeleteSource tests removing every entry of an mbox archive
func TestDeleteSource(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	for i := 0; i < 3; i++ {
		email := CreateTestEmail(fmt.Sprintf("Entry %d", i), "sender@test.com", "body")
		email.SourcePath = "box.mbox"
		email.FilePath = fmt.Sprintf("box.mbox#%d", i)
		email.MboxIndex = i
		_, err := db.InsertEmail(email)
		require.NoError(t, err)
	}
	_, err := db.InsertEmail(CreateTestEmail("Loose", "sender@test.com", "body"))
	require.NoError(t, err)

	n, err := db.DeleteSource("box.mbox")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestGetStats tests the aggregate statistics
func TestGetStats(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEmails)
	assert.False(t, stats.LastIndexed.Valid)

	withAttachment := CreateTestEmail("Attached", "a@test.com", "x")
	withAttachment.AttachmentCount = 1
	withAttachment.PartCount = 2
	failed := CreateTestEmail("Failed", "b@test.com", "y")
	failed.DecodeOK = false
	failed.PartCount = 0
	InsertTestEmails(t, db, []*Email{withAttachment, failed, CreateTestEmail("Plain", "c@test.com", "z")})

	stats, err = db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEmails)
	assert.Equal(t, 1, stats.WithAttachments)
	assert.Equal(t, 1, stats.DecodeFailures)
	assert.Equal(t, 3, stats.TotalParts)
	assert.True(t, stats.LastIndexed.Valid)
}

// TestNullDateHandling tests that NULL dates are handled correctly
func TestNullDateHandling(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Body")
	email.Date = NullTime{Valid: false}

	id, err := db.InsertEmail(email)
	require.NoError(t, err)

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	assert.False(t, retrieved.Date.Valid, "Date should be NULL/invalid")

	email2 := CreateTestEmail("Test Subject 2", "sender2@test.com", "Body 2")
	testDate := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	email2.Date = NewNullTime(testDate)

	id2, err := db.InsertEmail(email2)
	require.NoError(t, err)

	retrieved2, err := db.GetEmailByID(id2)
	require.NoError(t, err)
	assert.True(t, retrieved2.Date.Valid, "Date should be valid")
	assert.Equal(t, testDate.Unix(), retrieved2.Date.Time.Unix(), "Date should match")
}

// TestNullTime_Scan tests parsing the timestamp layouts SQLite produces
func TestNullTime_Scan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		valid bool
	}{
		{name: "nil", value: nil, valid: false},
		{name: "time", value: time.Now(), valid: true},
		{name: "sqlite default", value: "2024-01-02 03:04:05", valid: true},
		{name: "driver format", value: "2024-01-02 03:04:05.123456789+02:00", valid: true},
		{name: "rfc3339 bytes", value: []byte("2024-01-02T03:04:05Z"), valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nt NullTime
			require.NoError(t, nt.Scan(tt.value))
			assert.Equal(t, tt.valid, nt.Valid)
		})
	}

	var nt NullTime
	assert.Error(t, nt.Scan("yesterday"))
	assert.Error(t, nt.Scan(42))
}

// TestNullTime_MarshalJSON tests the JSON rendering of dates
func TestNullTime_MarshalJSON(t *testing.T) {
	b, err := NullTime{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = NewNullTime(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-06T07:08:09Z"`, string(b))
}

// TestFTS5TriggerBehavior tests that FTS5 triggers work correctly
func TestFTS5TriggerBehavior(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Searchable Subject", "sender@test.com", "Searchable body content")
	id, err := db.InsertEmail(email)
	require.NoError(t, err)

	results, err := db.SearchEmails("Searchable", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1, "Should find 1 result")
	assert.Equal(t, id, results[0].ID)

	email2 := CreateTestEmail("Another Email", "sender2@test.com", "Different content")
	id2, err := db.InsertEmail(email2)
	require.NoError(t, err)

	results, err = db.SearchEmails("content", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2, "Should find 2 results with 'content'")

	// Updates are reflected in the index
	_, err = db.Exec("UPDATE emails SET subject = ? WHERE id = ?", "Renamed zeppelin", id2)
	require.NoError(t, err)

	results, err = db.SearchEmails("zeppelin", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id2, results[0].ID)

	results, err = db.SearchEmails("Another", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results, "Old subject should no longer match")
}

// TestSettings tests setting and getting application settings
func TestSettings(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	value, err := db.GetSetting(SettingEmailsPath)
	require.NoError(t, err)
	assert.Empty(t, value, "Non-existent setting should return empty string")

	require.NoError(t, db.SetSetting(SettingEmailsPath, "/srv/mail"))

	value, err = db.GetSetting(SettingEmailsPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/mail", value)

	require.NoError(t, db.SetSetting(SettingEmailsPath, "/srv/other"))

	value, err = db.GetSetting(SettingEmailsPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/other", value, "Setting should be updated")
}

// TestGetUniqueSenders tests sender autocomplete ordering
func TestGetUniqueSenders(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("A1", "alice@test.com", "x"),
		CreateTestEmail("B1", "bob@test.com", "x"),
		CreateTestEmail("A2", "alice@test.com", "x"),
		CreateTestEmail("C1", "carol@test.com", "x"),
	})

	senders, err := db.GetUniqueSenders(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@test.com", "bob@test.com"}, senders)
}
