package indexer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/eml"
)

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	out, err := os.Create(dst)
	require.NoError(t, err)
	defer out.Close()

	_, err = io.Copy(out, in)
	require.NoError(t, err)
}

// setupMailFolder lays out two .eml files and one mbox archive with two messages
func setupMailFolder(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	copyFile(t, filepath.Join("testdata", "sample.eml"), filepath.Join(root, "inbox", "sample.eml"))
	copyFile(t, filepath.Join("..", "eml", "testdata", "nested.eml"), filepath.Join(root, "inbox", "nested.eml"))
	copyFile(t, filepath.Join("testdata", "archive.mbox"), filepath.Join(root, "archive.mbox"))
	return root
}

// TestEndToEndWorkflow tests the complete workflow from scanning to retrieval
func TestEndToEndWorkflow(t *testing.T) {
	root := setupMailFolder(t)
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	idx := NewIndexer(testDB, root, nil).WithConcurrency(2)

	var seen []string
	result, err := idx.IndexWithProgress(context.Background(), func(current, total int, filePath string) {
		assert.Equal(t, 3, total)
		assert.Equal(t, len(seen)+1, current)
		seen = append(seen, filePath)
	})
	require.NoError(t, err, "Should index all emails")

	assert.Equal(t, 3, result.TotalFound, "Should find all files")
	assert.Equal(t, 4, result.NewIndexed, "Should index every message, mbox entries included")
	assert.Equal(t, 0, result.Failed, "Should have no failures")
	assert.Equal(t, 0, result.Skipped, "Should skip no files (first run)")
	assert.ElementsMatch(t, []string{"archive.mbox", "inbox/nested.eml", "inbox/sample.eml"}, seen)

	count, err := testDB.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// A second run skips everything already stored
	result, err = idx.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewIndexed)
	assert.Equal(t, 4, result.Skipped)

	// The folder is remembered for serving content later
	stored, err := testDB.GetSetting(db.SettingEmailsPath)
	require.NoError(t, err)
	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, abs, stored)

	results, err := testDB.SearchEmails("integration", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "inbox/sample.eml", results[0].FilePath)
	assert.Contains(t, results[0].Snippet, "<mark>")
}

// TestIndex_EmlSummary tests the fields stored for a .eml file
func TestIndex_EmlSummary(t *testing.T) {
	root := setupMailFolder(t)
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	_, err := NewIndexer(testDB, root, nil).IndexAll(context.Background())
	require.NoError(t, err)

	email, err := testDB.GetEmailByPath("inbox/sample.eml")
	require.NoError(t, err)
	assert.Equal(t, "Integration Test Email", email.Subject)
	assert.Equal(t, "john.doe@example.com", email.Sender)
	assert.Equal(t, "John Doe", email.SenderName)
	assert.Equal(t, `"Jane Smith" <jane.smith@example.com>, team@example.com`, email.Recipients)
	assert.Equal(t, "manager@example.com", email.CC)
	assert.Equal(t, "<integration-test@example.com>", email.MessageID)
	assert.Equal(t, "inbox/sample.eml", email.SourcePath)
	assert.Equal(t, -1, email.MboxIndex)
	assert.True(t, email.DecodeOK)
	assert.True(t, email.Date.Valid)
	assert.Equal(t, 2023, email.Date.Time.Year())
	assert.Contains(t, email.BodyTextPreview, "integration test email")

	nested, err := testDB.GetEmailByPath("inbox/nested.eml")
	require.NoError(t, err)
	assert.Equal(t, "Nested café", nested.Subject)
	assert.Equal(t, 4, nested.PartCount)
	assert.Equal(t, 1, nested.AttachmentCount)
	assert.Equal(t, "Café au lait, please", nested.BodyTextPreview)

	parts, err := testDB.GetPartsByEmailID(nested.ID)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	assert.Equal(t, []string{"0", "0.0", "0.1", "1"}, []string{parts[0].Path, parts[1].Path, parts[2].Path, parts[3].Path})
	assert.Equal(t, "MIME", parts[0].Kind)
	assert.Equal(t, int64(0), parts[0].Size, "Containers have no content of their own")
	assert.Equal(t, "iso-8859-1", parts[1].Charset)
	assert.Equal(t, "HTML", parts[2].Kind)
	assert.Equal(t, "report, final.pdf", parts[3].Name)
	assert.Equal(t, "PDF", parts[3].Kind)
	assert.Equal(t, int64(len("%PDF-1.4\n")), parts[3].Size)
	assert.True(t, parts[3].IsAttachment)
}

// TestIndex_MboxEntries tests that every message of an archive is stored separately
func TestIndex_MboxEntries(t *testing.T) {
	root := setupMailFolder(t)
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	_, err := NewIndexer(testDB, root, nil).IndexAll(context.Background())
	require.NoError(t, err)

	first, err := testDB.GetEmailByPath("archive.mbox#0")
	require.NoError(t, err)
	assert.Equal(t, "First archived", first.Subject)
	assert.Equal(t, "archive.mbox", first.SourcePath)
	assert.Equal(t, 0, first.MboxIndex)
	assert.True(t, first.IsMboxEntry())
	assert.Equal(t, "Archived body one", first.BodyTextPreview)

	second, err := testDB.GetEmailByPath("archive.mbox#1")
	require.NoError(t, err)
	assert.Equal(t, "Second archivé", second.Subject)
	assert.Equal(t, "carol@example.com", second.Sender)
	assert.Equal(t, "Carol", second.SenderName)
	assert.Equal(t, "Second body & more", second.BodyTextPreview, "HTML previews are reduced to text")
	assert.False(t, second.Date.Valid)
}

// TestIndex_PreviewBytes tests that the preview is capped
func TestIndex_PreviewBytes(t *testing.T) {
	root := setupMailFolder(t)
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	_, err := NewIndexer(testDB, root, nil).WithPreviewBytes(4).IndexAll(context.Background())
	require.NoError(t, err)

	nested, err := testDB.GetEmailByPath("inbox/nested.eml")
	require.NoError(t, err)
	assert.Equal(t, "Caf", nested.BodyTextPreview, "Multibyte characters are not split")
}

// TestIndex_Cancelled tests that a cancelled context stops indexing
func TestIndex_Cancelled(t *testing.T) {
	root := setupMailFolder(t)
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewIndexer(testDB, root, nil).IndexAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, result.NewIndexed)

	count, err := testDB.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestIndex_MissingFolder tests that an unreadable folder is an error
func TestIndex_MissingFolder(t *testing.T) {
	testDB := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, testDB)

	_, err := NewIndexer(testDB, filepath.Join(t.TempDir(), "nope"), nil).IndexAll(context.Background())
	assert.Error(t, err)
}

// TestLoad tests reading stored messages back from disk
func TestLoad(t *testing.T) {
	root := setupMailFolder(t)
	ctx := context.Background()

	m, err := Load(ctx, filepath.Join(root, "archive.mbox"), 1, nil)
	require.NoError(t, err)
	assert.True(t, m.OK())
	assert.Equal(t, "Second archivé", m.Subject())

	m, err = Load(ctx, filepath.Join(root, "inbox", "nested.eml"), -1, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, m.PartCount())

	_, err = Load(ctx, filepath.Join(root, "archive.mbox"), 7, nil)
	assert.True(t, errors.Is(err, ErrEntryNotFound))

	_, err = Load(ctx, filepath.Join(root, "missing.mbox"), 0, nil)
	assert.True(t, errors.Is(err, eml.ErrFileNotFound))

	_, err = Load(ctx, filepath.Join(root, "missing.eml"), -1, nil)
	assert.True(t, errors.Is(err, eml.ErrFileNotFound))
}

// TestParseEntryKey tests splitting stored keys
func TestParseEntryKey(t *testing.T) {
	tests := []struct {
		key      string
		expected Entry
	}{
		{key: "a/b.eml", expected: Entry{Key: "a/b.eml", Source: "a/b.eml", MboxIndex: -1}},
		{key: "box.mbox#12", expected: Entry{Key: "box.mbox#12", Source: "box.mbox", MboxIndex: 12}},
		{key: "odd#name.eml", expected: Entry{Key: "odd#name.eml", Source: "odd#name.eml", MboxIndex: -1}},
		{key: "#3", expected: Entry{Key: "#3", Source: "#3", MboxIndex: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseEntryKey(tt.key))
		})
	}
	assert.Equal(t, "box.mbox#3", EntryKey("box.mbox", 3))
}

// TestSummarize tests summaries of in-memory messages
func TestSummarize(t *testing.T) {
	m := eml.FromBytes([]byte("From: not an address\nSubject: Odd\n\nplain body\n"))
	require.True(t, m.Decode(context.Background()))

	email, parts := Summarize(m, 100)
	assert.Equal(t, "not an address", email.Sender, "Unparseable senders are kept verbatim")
	assert.Empty(t, email.SenderName)
	assert.Equal(t, "plain body", email.BodyTextPreview)
	assert.False(t, email.Date.Valid)
	require.Len(t, parts, 1)
	assert.Equal(t, "0", parts[0].Path)
	assert.False(t, parts[0].IsAttachment)
}
