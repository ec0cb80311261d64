// Package account resolves accounts together with their secrets and
// manages their lifecycle.
package account

import (
	"context"
	"fmt"

	"github.com/nhle/mailjobs/internal/credential"
	"github.com/nhle/mailjobs/internal/model"
)

// AccountStore is the subset of store.Store the directory needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	AddJob(ctx context.Context, kind string, arg model.JobArgument) error
	RemoveJob(ctx context.Context, kind string, arg model.JobArgument) error
}

// Directory looks up accounts and fills in secrets from the credential store.
type Directory struct {
	store AccountStore
	creds *credential.Store
}

// NewDirectory creates a Directory.
func NewDirectory(s AccountStore, creds *credential.Store) *Directory {
	return &Directory{store: s, creds: creds}
}

// FindByID returns the account with its secrets. A missing account is
// reported with an error wrapping store.ErrNotFound.
func (d *Directory) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	account, err := d.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.creds.Fill(account); err != nil {
		return nil, fmt.Errorf("loading credentials for account %d: %w", id, err)
	}
	return account, nil
}

// List returns every account without secrets.
func (d *Directory) List(ctx context.Context) ([]model.Account, error) {
	return d.store.ListAccounts(ctx)
}
