package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
)

// KindTrainImportanceClassifier identifies the classifier training job.
const KindTrainImportanceClassifier = "train-importance-classifier"

// AccountDirectory resolves account IDs. A missing account is reported
// with an error wrapping store.ErrNotFound.
type AccountDirectory interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
}

// ClassificationSettings reports per-user classification preferences.
type ClassificationSettings interface {
	IsClassificationEnabled(ctx context.Context, userID string) (bool, error)
}

// Classifier trains the importance model of an account.
type Classifier interface {
	Train(ctx context.Context, account *model.Account, logger *slog.Logger) error
}

// Deps bundles the collaborators of TrainImportanceClassifierJob.
type Deps struct {
	Accounts   AccountDirectory
	Settings   ClassificationSettings
	Classifier Classifier
	JobList    JobList
	Logger     *slog.Logger
}

// TrainImportanceClassifierJob retrains one account's importance
// classifier every day.
type TrainImportanceClassifierJob struct {
	deps Deps
}

var _ Job = (*TrainImportanceClassifierJob)(nil)

// NewTrainImportanceClassifierJob creates the job.
func NewTrainImportanceClassifierJob(deps Deps) *TrainImportanceClassifierJob {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &TrainImportanceClassifierJob{deps: deps}
}

func (j *TrainImportanceClassifierJob) Kind() string            { return KindTrainImportanceClassifier }
func (j *TrainImportanceClassifierJob) Interval() time.Duration { return 24 * time.Hour }
func (j *TrainImportanceClassifierJob) TimeSensitive() bool     { return false }

// Run trains the classifier for arg.AccountID. Entries for accounts that
// no longer exist are removed from the job list.
func (j *TrainImportanceClassifierJob) Run(ctx context.Context, arg model.JobArgument) Outcome {
	logger := j.deps.Logger.With("job", KindTrainImportanceClassifier, "account_id", arg.AccountID)

	account, err := j.deps.Accounts.FindByID(ctx, arg.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("could not find account, removing from jobs")
		if err := j.deps.JobList.RemoveJob(ctx, KindTrainImportanceClassifier, arg); err != nil {
			logger.Error("could not remove job entry", "error", err)
		}
		return OutcomeRemoved
	}
	if err != nil {
		logger.Error("could not load account", "error", err)
		return OutcomeFailed
	}
	if account == nil {
		logger.Error("account directory returned no account")
		return OutcomeFailed
	}

	if !account.CanAuthenticateIMAP() {
		logger.Debug("account cannot authenticate against IMAP, skipping training")
		return OutcomeSkipped
	}

	enabled, err := j.deps.Settings.IsClassificationEnabled(ctx, account.UserID)
	if err != nil {
		logger.Error("could not load classification settings", "user_id", account.UserID, "error", err)
		return OutcomeFailed
	}
	if !enabled {
		logger.Debug("classification disabled for user, skipping training", "user_id", account.UserID)
		return OutcomeSkipped
	}

	if err := j.train(ctx, account, logger); err != nil {
		logger.Error("importance classifier training failed", "error", err)
		return OutcomeFailed
	}

	logger.Debug("importance classifier training finished")
	return OutcomeTrained
}

// train calls the classifier once, turning a panic into an error.
func (j *TrainImportanceClassifierJob) train(
	ctx context.Context,
	account *model.Account,
	logger *slog.Logger,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return j.deps.Classifier.Train(ctx, account, logger)
}
