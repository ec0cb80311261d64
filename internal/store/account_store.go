package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

const accountColumns = `
	id, user_id, name, email,
	inbound_host, inbound_port, inbound_user, inbound_tls,
	outbound_host, outbound_port, outbound_user, outbound_tls,
	auth_method, sent_mailbox_id, drafts_mailbox_id,
	created_at, updated_at`

// CreateAccount inserts a new account and sets its ID.
func (s *SQLiteStore) CreateAccount(
	ctx context.Context,
	account *model.Account,
) error {
	if strings.TrimSpace(account.UserID) == "" {
		return fmt.Errorf("account user id must not be empty")
	}
	if strings.TrimSpace(account.Email) == "" {
		return fmt.Errorf("account email must not be empty")
	}
	if account.AuthMethod == "" {
		account.AuthMethod = model.AuthMethodPassword
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			user_id, name, email,
			inbound_host, inbound_port, inbound_user, inbound_tls,
			outbound_host, outbound_port, outbound_user, outbound_tls,
			auth_method, sent_mailbox_id, drafts_mailbox_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.UserID, account.Name, account.Email,
		account.InboundHost, account.InboundPort, account.InboundUser, boolToInt(account.InboundTLS),
		account.OutboundHost, account.OutboundPort, account.OutboundUser, boolToInt(account.OutboundTLS),
		account.AuthMethod, account.SentMailboxID, account.DraftsMailboxID,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	account.ID = id

	return nil
}

// UpdateAccount updates an existing account's settings by ID.
func (s *SQLiteStore) UpdateAccount(
	ctx context.Context,
	account *model.Account,
) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			user_id = ?, name = ?, email = ?,
			inbound_host = ?, inbound_port = ?, inbound_user = ?, inbound_tls = ?,
			outbound_host = ?, outbound_port = ?, outbound_user = ?, outbound_tls = ?,
			auth_method = ?, sent_mailbox_id = ?, drafts_mailbox_id = ?,
			updated_at = ?
		WHERE id = ?`,
		account.UserID, account.Name, account.Email,
		account.InboundHost, account.InboundPort, account.InboundUser, boolToInt(account.InboundTLS),
		account.OutboundHost, account.OutboundPort, account.OutboundUser, boolToInt(account.OutboundTLS),
		account.AuthMethod, account.SentMailboxID, account.DraftsMailboxID,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", account.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account %d: %w", account.ID, ErrNotFound)
	}
	return nil
}

// GetAccount retrieves a single account by ID. Secrets are not populated.
func (s *SQLiteStore) GetAccount(
	ctx context.Context,
	id int64,
) (*model.Account, error) {
	var account model.Account
	err := s.db.GetContext(ctx, &account,
		"SELECT"+accountColumns+" FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %d: %w", id, err)
	}
	return &account, nil
}

// ListAccounts returns every account ordered by ID.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT"+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account. Cascades to mailboxes, messages,
// local messages and sender scores. Job list entries are left in place
// and pruned by the jobs themselves.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertMailbox inserts a mailbox or updates the special-use attribute of
// an existing one with the same (account, name). The mailbox ID is set.
func (s *SQLiteStore) UpsertMailbox(
	ctx context.Context,
	mailbox *model.Mailbox,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (account_id, name, special_use)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE SET special_use = excluded.special_use`,
		mailbox.AccountID, mailbox.Name, mailbox.SpecialUse,
	)
	if err != nil {
		return fmt.Errorf("upserting mailbox %q: %w", mailbox.Name, err)
	}

	err = s.db.GetContext(ctx, &mailbox.ID,
		"SELECT id FROM mailboxes WHERE account_id = ? AND name = ?",
		mailbox.AccountID, mailbox.Name,
	)
	if err != nil {
		return fmt.Errorf("reading mailbox id %q: %w", mailbox.Name, err)
	}
	return nil
}

// GetMailbox retrieves a mailbox by ID.
func (s *SQLiteStore) GetMailbox(
	ctx context.Context,
	id int64,
) (*model.Mailbox, error) {
	var mailbox model.Mailbox
	err := s.db.GetContext(ctx, &mailbox,
		"SELECT id, account_id, name, special_use FROM mailboxes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mailbox %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting mailbox %d: %w", id, err)
	}
	return &mailbox, nil
}

// ListMailboxes returns the mailboxes of an account ordered by name.
func (s *SQLiteStore) ListMailboxes(
	ctx context.Context,
	accountID int64,
) ([]model.Mailbox, error) {
	var mailboxes []model.Mailbox
	err := s.db.SelectContext(ctx, &mailboxes, `
		SELECT id, account_id, name, special_use FROM mailboxes
		WHERE account_id = ? ORDER BY name`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes for account %d: %w", accountID, err)
	}
	return mailboxes, nil
}
