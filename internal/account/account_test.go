package account_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/mailjobs/internal/account"
	"github.com/nhle/mailjobs/internal/credential"
	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
	"github.com/nhle/mailjobs/tests/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProvision_SchedulesJobsAndStoresSecrets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	creds := credential.NewWithKeyring(keyring.NewArrayKeyring(nil))
	svc := account.NewService(s, creds, discardLogger(), "train-importance-classifier")

	acc := &model.Account{
		UserID:          "alice",
		Email:           "alice@example.com",
		InboundPassword: "pw",
	}
	if err := svc.Provision(ctx, acc); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Argument.AccountID != acc.ID {
		t.Fatalf("jobs: got %+v, want one entry for account %d", jobs, acc.ID)
	}

	dir := account.NewDirectory(s, creds)
	found, err := dir.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !found.CanAuthenticateIMAP() {
		t.Error("expected provisioned account to authenticate against IMAP")
	}
}

func TestDelete_LeavesJobForPruning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	creds := credential.NewWithKeyring(keyring.NewArrayKeyring(nil))
	svc := account.NewService(s, creds, discardLogger(), "train-importance-classifier")

	acc := &model.Account{UserID: "bob", Email: "bob@example.com", InboundPassword: "pw"}
	if err := svc.Provision(ctx, acc); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := svc.Delete(ctx, acc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	dir := account.NewDirectory(s, creds)
	if _, err := dir.FindByID(ctx, acc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindByID after delete: got %v, want ErrNotFound", err)
	}

	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("got %d jobs, want the entry to remain until pruned", len(jobs))
	}
	if secret, _ := creds.Get(acc.ID, credential.KindInbound); secret != "" {
		t.Errorf("inbound secret after delete: got %q, want empty", secret)
	}
}

// failingKeyring rejects writes of outbound secrets.
type failingKeyring struct {
	keyring.Keyring
}

func (k failingKeyring) Set(item keyring.Item) error {
	if strings.HasSuffix(item.Key, "-"+credential.KindOutbound) {
		return errors.New("keyring locked")
	}
	return k.Keyring.Set(item)
}

// failingJobStore rejects scheduling of one job kind.
type failingJobStore struct {
	*store.SQLiteStore
	kind string
}

func (s failingJobStore) AddJob(ctx context.Context, kind string, arg model.JobArgument) error {
	if kind == s.kind {
		return errors.New("disk full")
	}
	return s.SQLiteStore.AddJob(ctx, kind, arg)
}

func assertNoAccounts(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("got %d accounts, want the failed one rolled back", len(accounts))
	}
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("got %d jobs, want none", len(jobs))
	}
}

func TestProvision_RollsBackOnCredentialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	creds := credential.NewWithKeyring(failingKeyring{keyring.NewArrayKeyring(nil)})
	svc := account.NewService(s, creds, discardLogger(), "train-importance-classifier")

	acc := &model.Account{
		UserID:           "erin",
		Email:            "erin@example.com",
		InboundPassword:  "pw",
		OutboundPassword: "smtp-pw",
	}
	if err := svc.Provision(ctx, acc); err == nil {
		t.Fatal("expected Provision to fail")
	}
	if acc.ID != 0 {
		t.Errorf("ID after failed Provision: got %d, want 0", acc.ID)
	}
	assertNoAccounts(t, s)

	if secret, _ := creds.Get(1, credential.KindInbound); secret != "" {
		t.Errorf("inbound secret after rollback: got %q, want empty", secret)
	}
}

func TestProvision_RollsBackOnSchedulingFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	creds := credential.NewWithKeyring(keyring.NewArrayKeyring(nil))
	svc := account.NewService(failingJobStore{SQLiteStore: s, kind: "second"}, creds, discardLogger(), "first", "second")

	acc := &model.Account{UserID: "frank", Email: "frank@example.com", InboundPassword: "pw"}
	if err := svc.Provision(ctx, acc); err == nil {
		t.Fatal("expected Provision to fail")
	}
	assertNoAccounts(t, s)

	// A retry after the fault clears creates exactly one account.
	svc = account.NewService(s, creds, discardLogger(), "first", "second")
	if err := svc.Provision(ctx, acc); err != nil {
		t.Fatalf("retry Provision: %v", err)
	}
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("got %d accounts after retry, want 1", len(accounts))
	}
}
