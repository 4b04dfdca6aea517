package db

// The index stores metadata, a text preview and the part layout of every
// message. Decoded content is read back from the source file on demand.
const schema = `
-- One row per message: a .eml file or one entry of an mbox archive
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path TEXT UNIQUE NOT NULL,     -- "dir/a.eml" or "dir/box.mbox#3"
    source_path TEXT NOT NULL,          -- file on disk, relative to the emails folder
    mbox_index INTEGER NOT NULL DEFAULT -1,
    message_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    sender_name TEXT NOT NULL DEFAULT '',
    recipients TEXT NOT NULL DEFAULT '',
    cc TEXT NOT NULL DEFAULT '',
    date DATETIME,
    body_text_preview TEXT NOT NULL DEFAULT '',
    decode_ok BOOLEAN NOT NULL DEFAULT 1,
    part_count INTEGER NOT NULL DEFAULT 0,
    attachment_count INTEGER NOT NULL DEFAULT 0,
    file_size INTEGER NOT NULL DEFAULT 0,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search virtual table
CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    subject,
    sender,
    sender_name,
    recipients,
    body_text_preview,
    content='emails',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS emails_ai AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS emails_ad AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS emails_au AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

-- MIME parts in document order, addressed by dotted path ("0.1.2")
CREATE TABLE IF NOT EXISTS parts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    charset TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    is_attachment BOOLEAN NOT NULL DEFAULT 0,
    FOREIGN KEY(email_id) REFERENCES emails(id) ON DELETE CASCADE,
    UNIQUE(email_id, path)
);

-- Settings table (for storing email folder path, preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date DESC);
CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_source_path ON emails(source_path);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_parts_email_id ON parts(email_id);
`
