package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/mailjobs/internal/credential"
	"github.com/nhle/mailjobs/internal/model"
)

// Service provisions and removes accounts.
type Service struct {
	store AccountStore
	creds *credential.Store

	// jobKinds are scheduled for every provisioned account.
	jobKinds []string
	logger   *slog.Logger
}

// NewService creates a Service that schedules jobKinds for new accounts.
func NewService(s AccountStore, creds *credential.Store, logger *slog.Logger, jobKinds ...string) *Service {
	return &Service{store: s, creds: creds, jobKinds: jobKinds, logger: logger}
}

// Provision creates the account, stores its secrets and schedules the
// per-account jobs. If any step fails the partly created account is rolled
// back and account.ID is reset.
func (s *Service) Provision(ctx context.Context, account *model.Account) error {
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return err
	}

	if err := s.setUp(ctx, account); err != nil {
		s.rollback(context.WithoutCancel(ctx), account.ID)
		account.ID = 0
		return err
	}

	s.logger.Info("account provisioned", "account_id", account.ID, "user_id", account.UserID)
	return nil
}

func (s *Service) setUp(ctx context.Context, account *model.Account) error {
	if err := s.creds.Save(account); err != nil {
		return fmt.Errorf("saving credentials for account %d: %w", account.ID, err)
	}

	arg := model.JobArgument{AccountID: account.ID}
	for _, kind := range s.jobKinds {
		if err := s.store.AddJob(ctx, kind, arg); err != nil {
			return fmt.Errorf("scheduling %s for account %d: %w", kind, account.ID, err)
		}
	}
	return nil
}

// rollback undoes a failed Provision. Failures are logged; a job entry left
// behind is pruned by its job.
func (s *Service) rollback(ctx context.Context, id int64) {
	arg := model.JobArgument{AccountID: id}
	for _, kind := range s.jobKinds {
		if err := s.store.RemoveJob(ctx, kind, arg); err != nil {
			s.logger.Warn("could not remove job of failed account", "account_id", id, "kind", kind, "error", err)
		}
	}
	if err := s.creds.Purge(id); err != nil {
		s.logger.Warn("could not purge credentials of failed account", "account_id", id, "error", err)
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		s.logger.Error("could not delete partly provisioned account", "account_id", id, "error", err)
		return
	}
	s.logger.Info("rolled back account provisioning", "account_id", id)
}

// Delete removes the account and its secrets. Job list entries are left
// behind; each job prunes its own entry on the next run.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if err := s.creds.Purge(id); err != nil {
		s.logger.Warn("could not purge credentials", "account_id", id, "error", err)
	}

	s.logger.Info("account deleted", "account_id", id)
	return nil
}
