package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL,
	inbound_host      TEXT NOT NULL DEFAULT '',
	inbound_port      INTEGER NOT NULL DEFAULT 993,
	inbound_user      TEXT NOT NULL DEFAULT '',
	inbound_tls       INTEGER NOT NULL DEFAULT 1 CHECK(inbound_tls IN (0, 1)),
	outbound_host     TEXT NOT NULL DEFAULT '',
	outbound_port     INTEGER NOT NULL DEFAULT 587,
	outbound_user     TEXT NOT NULL DEFAULT '',
	outbound_tls      INTEGER NOT NULL DEFAULT 0 CHECK(outbound_tls IN (0, 1)),
	auth_method       TEXT NOT NULL DEFAULT 'password',
	sent_mailbox_id   INTEGER,
	drafts_mailbox_id INTEGER,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	special_use TEXT NOT NULL DEFAULT '',
	UNIQUE (account_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id                  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	mailbox_id                  INTEGER NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	uid                         INTEGER NOT NULL,
	message_id                  TEXT NOT NULL DEFAULT '',
	subject                     TEXT NOT NULL DEFAULT '',
	from_addr                   TEXT NOT NULL DEFAULT '',
	to_addrs                    TEXT NOT NULL DEFAULT '[]',
	flags                       TEXT NOT NULL DEFAULT '[]',
	disposition_notification_to TEXT NOT NULL DEFAULT '',
	sent_at                     DATETIME NOT NULL,
	UNIQUE (mailbox_id, uid)
);

CREATE TABLE IF NOT EXISTS local_messages (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id             INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	type                   TEXT NOT NULL CHECK(type IN ('outgoing', 'draft')),
	subject                TEXT NOT NULL DEFAULT '',
	body                   TEXT NOT NULL DEFAULT '',
	html                   INTEGER NOT NULL DEFAULT 0 CHECK(html IN (0, 1)),
	in_reply_to_message_id TEXT NOT NULL DEFAULT '',
	draft_id               INTEGER,
	request_mdn            INTEGER NOT NULL DEFAULT 0 CHECK(request_mdn IN (0, 1)),
	sent_at                DATETIME,
	updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS local_recipients (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	local_message_id INTEGER NOT NULL REFERENCES local_messages(id) ON DELETE CASCADE,
	type             TEXT NOT NULL CHECK(type IN ('to', 'cc', 'bcc')),
	label            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS local_attachments (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	local_message_id INTEGER NOT NULL REFERENCES local_messages(id) ON DELETE CASCADE,
	filename         TEXT NOT NULL,
	content_type     TEXT NOT NULL DEFAULT 'application/octet-stream',
	content          BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_mailboxes_account_id ON mailboxes(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_account_message_id ON messages(account_id, message_id);
CREATE INDEX IF NOT EXISTS idx_local_messages_account_id ON local_messages(account_id);
CREATE INDEX IF NOT EXISTS idx_local_recipients_message ON local_recipients(local_message_id);
CREATE INDEX IF NOT EXISTS idx_local_attachments_message ON local_attachments(local_message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS job_list (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	argument    TEXT NOT NULL,
	last_run    DATETIME,
	reserved_at DATETIME,
	UNIQUE (kind, argument)
);

CREATE TABLE IF NOT EXISTS classification_settings (
	user_id TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL DEFAULT 1 CHECK(enabled IN (0, 1))
);

CREATE TABLE IF NOT EXISTS sender_scores (
	account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	sender     TEXT NOT NULL,
	total      INTEGER NOT NULL,
	important  INTEGER NOT NULL,
	score      REAL NOT NULL,
	trained_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, sender)
);

CREATE INDEX IF NOT EXISTS idx_job_list_kind ON job_list(kind);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
