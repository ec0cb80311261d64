package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

// messageRow mirrors the messages table; list columns are JSON encoded.
type messageRow struct {
	ID                        int64     `db:"id"`
	AccountID                 int64     `db:"account_id"`
	MailboxID                 int64     `db:"mailbox_id"`
	UID                       uint32    `db:"uid"`
	MessageID                 string    `db:"message_id"`
	Subject                   string    `db:"subject"`
	From                      string    `db:"from_addr"`
	To                        string    `db:"to_addrs"`
	Flags                     string    `db:"flags"`
	DispositionNotificationTo string    `db:"disposition_notification_to"`
	SentAt                    time.Time `db:"sent_at"`
}

func (r messageRow) toModel() (*model.Message, error) {
	to, err := decodeStrings(r.To)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling to_addrs of message %d: %w", r.ID, err)
	}
	flags, err := decodeStrings(r.Flags)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling flags of message %d: %w", r.ID, err)
	}
	return &model.Message{
		ID:                        r.ID,
		AccountID:                 r.AccountID,
		MailboxID:                 r.MailboxID,
		UID:                       r.UID,
		MessageID:                 r.MessageID,
		Subject:                   r.Subject,
		From:                      r.From,
		To:                        to,
		Flags:                     flags,
		DispositionNotificationTo: r.DispositionNotificationTo,
		SentAt:                    r.SentAt,
	}, nil
}

const messageColumns = `
	id, account_id, mailbox_id, uid, message_id, subject, from_addr,
	to_addrs, flags, disposition_notification_to, sent_at`

// InsertMessage caches a server-side message and sets its ID. A message
// with the same (mailbox, uid) is replaced.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	to, err := encodeStrings(msg.To)
	if err != nil {
		return fmt.Errorf("marshaling to_addrs: %w", err)
	}
	flags, err := encodeStrings(msg.Flags)
	if err != nil {
		return fmt.Errorf("marshaling flags: %w", err)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (
			account_id, mailbox_id, uid, message_id, subject, from_addr,
			to_addrs, flags, disposition_notification_to, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.AccountID, msg.MailboxID, msg.UID, msg.MessageID, msg.Subject, msg.From,
		to, flags, msg.DispositionNotificationTo, msg.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message uid %d: %w", msg.UID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message id: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessage retrieves a cached message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		"SELECT"+messageColumns+" FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %d: %w", id, err)
	}
	return row.toModel()
}

// FindMessageByMessageID looks up a cached message of an account by its
// Message-ID header.
func (s *SQLiteStore) FindMessageByMessageID(
	ctx context.Context,
	accountID int64,
	messageID string,
) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, "SELECT"+messageColumns+`
		FROM messages WHERE account_id = ? AND message_id = ?
		ORDER BY id DESC LIMIT 1`, accountID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %q: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding message %q: %w", messageID, err)
	}
	return row.toModel()
}

// DeleteMessage removes a cached message. Deleting a missing message is
// not an error.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting message %d: %w", id, err)
	}
	return nil
}

// AddMessageFlags adds flags to a cached message, ignoring ones it already has.
func (s *SQLiteStore) AddMessageFlags(ctx context.Context, id int64, flags ...string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.GetContext(ctx, &raw, "SELECT flags FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading flags of message %d: %w", id, err)
	}

	current, err := decodeStrings(raw)
	if err != nil {
		return fmt.Errorf("unmarshaling flags of message %d: %w", id, err)
	}

	msg := model.Message{Flags: current}
	for _, f := range flags {
		if !msg.HasFlag(f) {
			msg.Flags = append(msg.Flags, f)
		}
	}

	encoded, err := encodeStrings(msg.Flags)
	if err != nil {
		return fmt.Errorf("marshaling flags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET flags = ? WHERE id = ?", encoded, id,
	); err != nil {
		return fmt.Errorf("updating flags of message %d: %w", id, err)
	}

	return tx.Commit()
}

// SaveLocalMessage inserts a local message, or replaces it together with
// its recipients and attachments when ID is set.
func (s *SQLiteStore) SaveLocalMessage(ctx context.Context, msg *model.LocalMessage) error {
	if msg.Type == "" {
		msg.Type = model.LocalMessageTypeOutgoing
	}
	msg.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if msg.ID == 0 {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO local_messages (
				account_id, type, subject, body, html,
				in_reply_to_message_id, draft_id, request_mdn, sent_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.AccountID, msg.Type, msg.Subject, msg.Body, boolToInt(msg.HTML),
			msg.InReplyToMessageID, msg.DraftID, boolToInt(msg.RequestMDN), msg.SentAt, msg.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting local message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading local message id: %w", err)
		}
		msg.ID = id
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE local_messages SET
				account_id = ?, type = ?, subject = ?, body = ?, html = ?,
				in_reply_to_message_id = ?, draft_id = ?, request_mdn = ?,
				sent_at = ?, updated_at = ?
			WHERE id = ?`,
			msg.AccountID, msg.Type, msg.Subject, msg.Body, boolToInt(msg.HTML),
			msg.InReplyToMessageID, msg.DraftID, boolToInt(msg.RequestMDN),
			msg.SentAt, msg.UpdatedAt,
			msg.ID,
		)
		if err != nil {
			return fmt.Errorf("updating local message %d: %w", msg.ID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("local message %d: %w", msg.ID, ErrNotFound)
		}
		for _, table := range []string{"local_recipients", "local_attachments"} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE local_message_id = ?", msg.ID,
			); err != nil {
				return fmt.Errorf("clearing %s of local message %d: %w", table, msg.ID, err)
			}
		}
	}

	for _, r := range msg.Recipients {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO local_recipients (local_message_id, type, label, email)
			VALUES (?, ?, ?, ?)`,
			msg.ID, r.Type, r.Label, r.Email,
		); err != nil {
			return fmt.Errorf("inserting recipient %s: %w", r.Email, err)
		}
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO local_attachments (local_message_id, filename, content_type, content)
			VALUES (?, ?, ?, ?)`,
			msg.ID, a.Filename, contentType, a.Content,
		); err != nil {
			return fmt.Errorf("inserting attachment %s: %w", a.Filename, err)
		}
	}

	return tx.Commit()
}

// GetLocalMessage retrieves a local message with recipients and attachments.
func (s *SQLiteStore) GetLocalMessage(ctx context.Context, id int64) (*model.LocalMessage, error) {
	var msg model.LocalMessage
	err := s.db.GetContext(ctx, &msg, `
		SELECT id, account_id, type, subject, body, html,
			in_reply_to_message_id, draft_id, request_mdn, sent_at, updated_at
		FROM local_messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("local message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting local message %d: %w", id, err)
	}

	err = s.db.SelectContext(ctx, &msg.Recipients, `
		SELECT type, label, email FROM local_recipients
		WHERE local_message_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("getting recipients of local message %d: %w", id, err)
	}

	err = s.db.SelectContext(ctx, &msg.Attachments, `
		SELECT filename, content_type, content FROM local_attachments
		WHERE local_message_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("getting attachments of local message %d: %w", id, err)
	}

	return &msg, nil
}

// MarkLocalMessageSent records the send time of a local message.
func (s *SQLiteStore) MarkLocalMessageSent(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE local_messages SET sent_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking local message %d sent: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("local message %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteLocalMessage removes a local message. Cascades to recipients and
// attachments.
func (s *SQLiteStore) DeleteLocalMessage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM local_messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting local message %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("local message %d: %w", id, ErrNotFound)
	}
	return nil
}
