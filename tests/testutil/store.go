package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewFileTestStore creates a SQLiteStore in a temporary directory and
// returns the database path, so tests can reach the rows through ExecRaw.
func NewFileTestStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mailjobs.db")
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s, path
}

// ExecRaw runs a statement against the database at path on a separate
// connection, bypassing the store.
func ExecRaw(t *testing.T, path, query string, args ...any) {
	t.Helper()

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("executing %q: %v", query, err)
	}
}

// NewTestAccount inserts an account owned by userID and returns it. The
// returned value carries an IMAP password, but secrets are never written
// to the database: reloading the account from the store yields one that
// cannot authenticate.
func NewTestAccount(t *testing.T, s *store.SQLiteStore, userID string) *model.Account {
	t.Helper()

	account := &model.Account{
		UserID:          userID,
		Name:            "Test",
		Email:           userID + "@example.com",
		InboundHost:     "imap.example.com",
		InboundPort:     993,
		InboundUser:     userID,
		InboundTLS:      true,
		OutboundHost:    "smtp.example.com",
		OutboundPort:    587,
		InboundPassword: "secret",
	}
	if err := s.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("creating test account: %v", err)
	}
	return account
}
