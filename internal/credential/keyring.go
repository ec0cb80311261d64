package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/mailjobs/internal/model"
)

// Secret kinds stored per account.
const (
	KindInbound  = "inbound"
	KindOutbound = "outbound"
	KindOAuth    = "oauth"
)

// Store keeps account secrets out of the database.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the first available system keyring,
// falling back to an encrypted file under cfg.FileDir.
func Open(cfg model.KeyringConfig) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.Service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         filePasswordFunc(cfg),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewWithKeyring(ring), nil
}

// filePasswordFunc supplies the file backend password from configuration,
// prompting on the terminal when none is set.
func filePasswordFunc(cfg model.KeyringConfig) keyring.PromptFunc {
	if cfg.FilePassword != "" {
		return keyring.FixedStringPrompt(cfg.FilePassword)
	}
	return keyring.TerminalPrompt
}

// NewWithKeyring wraps an already opened keyring.
func NewWithKeyring(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func key(accountID int64, kind string) string {
	return fmt.Sprintf("account-%d-%s", accountID, kind)
}

// Get retrieves a secret. A missing secret yields an empty string.
func (s *Store) Get(accountID int64, kind string) (string, error) {
	item, err := s.ring.Get(key(accountID, kind))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key(accountID, kind), err)
	}
	return string(item.Data), nil
}

// Set stores a secret. An empty value removes it.
func (s *Store) Set(accountID int64, kind, value string) error {
	if value == "" {
		return s.Delete(accountID, kind)
	}

	err := s.ring.Set(keyring.Item{
		Key:  key(accountID, kind),
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key(accountID, kind), err)
	}
	return nil
}

// Delete removes a secret. Removing a missing secret is not an error.
func (s *Store) Delete(accountID int64, kind string) error {
	err := s.ring.Remove(key(accountID, kind))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key(accountID, kind), err)
	}
	return nil
}

// Fill loads every secret of the account into its in-memory fields.
func (s *Store) Fill(account *model.Account) error {
	var err error
	if account.InboundPassword, err = s.Get(account.ID, KindInbound); err != nil {
		return err
	}
	if account.OutboundPassword, err = s.Get(account.ID, KindOutbound); err != nil {
		return err
	}
	if account.OAuthToken, err = s.Get(account.ID, KindOAuth); err != nil {
		return err
	}
	return nil
}

// Save persists the in-memory secrets of the account.
func (s *Store) Save(account *model.Account) error {
	if err := s.Set(account.ID, KindInbound, account.InboundPassword); err != nil {
		return err
	}
	if err := s.Set(account.ID, KindOutbound, account.OutboundPassword); err != nil {
		return err
	}
	return s.Set(account.ID, KindOAuth, account.OAuthToken)
}

// Purge removes every secret of the account.
func (s *Store) Purge(accountID int64) error {
	for _, kind := range []string{KindInbound, KindOutbound, KindOAuth} {
		if err := s.Delete(accountID, kind); err != nil {
			return err
		}
	}
	return nil
}
