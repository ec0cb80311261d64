package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
	"github.com/nhle/mailjobs/tests/testutil"
)

type fakeAccounts struct {
	accounts map[int64]*model.Account
	err      error
}

func (f *fakeAccounts) FindByID(_ context.Context, id int64) (*model.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, store.ErrNotFound)
	}
	return a, nil
}

type fakeSettings struct {
	disabled map[string]bool
	err      error
}

func (f *fakeSettings) IsClassificationEnabled(_ context.Context, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.disabled[userID], nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	trained []int64
	err     error
	panics  bool
}

func (f *fakeClassifier) Train(_ context.Context, account *model.Account, logger *slog.Logger) error {
	f.mu.Lock()
	f.trained = append(f.trained, account.ID)
	f.mu.Unlock()
	if logger == nil {
		return errors.New("nil logger")
	}
	if f.panics {
		panic("model exploded")
	}
	return f.err
}

type removeCall struct {
	kind string
	arg  model.JobArgument
}

type fakeJobList struct {
	removed []removeCall
	err     error
}

func (f *fakeJobList) RemoveJob(_ context.Context, kind string, arg model.JobArgument) error {
	f.removed = append(f.removed, removeCall{kind: kind, arg: arg})
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	accounts   *fakeAccounts
	settings   *fakeSettings
	classifier *fakeClassifier
	jobList    *fakeJobList
	job        *TrainImportanceClassifierJob
}

func newFixture() *fixture {
	f := &fixture{
		accounts: &fakeAccounts{accounts: map[int64]*model.Account{
			42: {ID: 42, UserID: "alice", InboundPassword: "pw"},
			43: {ID: 43, UserID: "bob"},
			44: {ID: 44, UserID: "carol", AuthMethod: model.AuthMethodXOAuth2, OAuthToken: "tok"},
		}},
		settings:   &fakeSettings{disabled: map[string]bool{}},
		classifier: &fakeClassifier{},
		jobList:    &fakeJobList{},
	}
	f.job = NewTrainImportanceClassifierJob(Deps{
		Accounts:   f.accounts,
		Settings:   f.settings,
		Classifier: f.classifier,
		JobList:    f.jobList,
		Logger:     discardLogger(),
	})
	return f
}

func TestTrainJob_Metadata(t *testing.T) {
	t.Parallel()
	job := newFixture().job
	if job.Kind() != "train-importance-classifier" {
		t.Errorf("Kind(): got %q", job.Kind())
	}
	if job.Interval().Seconds() != 86400 {
		t.Errorf("Interval(): got %v, want 24h", job.Interval())
	}
	if job.TimeSensitive() {
		t.Error("TimeSensitive(): got true, want false")
	}
}

func TestTrainJob_ExistingAccountTrainsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture()

	got := f.job.Run(context.Background(), model.JobArgument{AccountID: 42})

	if got != OutcomeTrained {
		t.Errorf("outcome: got %v, want %v", got, OutcomeTrained)
	}
	if len(f.classifier.trained) != 1 || f.classifier.trained[0] != 42 {
		t.Errorf("train calls: got %v, want [42]", f.classifier.trained)
	}
	if len(f.jobList.removed) != 0 {
		t.Errorf("remove calls: got %v, want none", f.jobList.removed)
	}
}

func TestTrainJob_MissingAccountRemovesEntry(t *testing.T) {
	t.Parallel()
	f := newFixture()
	arg := model.JobArgument{AccountID: 7}

	got := f.job.Run(context.Background(), arg)

	if got != OutcomeRemoved {
		t.Errorf("outcome: got %v, want %v", got, OutcomeRemoved)
	}
	if len(f.jobList.removed) != 1 {
		t.Fatalf("remove calls: got %d, want 1", len(f.jobList.removed))
	}
	if call := f.jobList.removed[0]; call.kind != KindTrainImportanceClassifier || call.arg != arg {
		t.Errorf("remove call: got %+v", call)
	}
	if len(f.classifier.trained) != 0 {
		t.Errorf("train calls: got %v, want none", f.classifier.trained)
	}
}

func TestTrainJob_RemoveFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.jobList.err = errors.New("database is locked")

	if got := f.job.Run(context.Background(), model.JobArgument{AccountID: 7}); got != OutcomeRemoved {
		t.Errorf("outcome: got %v, want %v", got, OutcomeRemoved)
	}
}

func TestTrainJob_Preconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		accountID int64
		setup     func(f *fixture)
		want      Outcome
		wantTrain bool
	}{
		{
			name:      "imap unavailable",
			accountID: 43,
			want:      OutcomeSkipped,
		},
		{
			name:      "classification disabled",
			accountID: 42,
			setup:     func(f *fixture) { f.settings.disabled["alice"] = true },
			want:      OutcomeSkipped,
		},
		{
			name:      "settings lookup fails",
			accountID: 42,
			setup:     func(f *fixture) { f.settings.err = errors.New("boom") },
			want:      OutcomeFailed,
		},
		{
			name:      "account lookup fails",
			accountID: 42,
			setup:     func(f *fixture) { f.accounts.err = errors.New("connection reset") },
			want:      OutcomeFailed,
		},
		{
			name:      "oauth account",
			accountID: 44,
			want:      OutcomeTrained,
			wantTrain: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			got := f.job.Run(context.Background(), model.JobArgument{AccountID: tt.accountID})

			if got != tt.want {
				t.Errorf("outcome: got %v, want %v", got, tt.want)
			}
			if trained := len(f.classifier.trained) == 1; trained != tt.wantTrain {
				t.Errorf("train calls: got %v, want trained=%v", f.classifier.trained, tt.wantTrain)
			}
			if len(f.jobList.removed) != 0 {
				t.Errorf("entry must not be removed, got %v", f.jobList.removed)
			}
		})
	}
}

func TestTrainJob_TrainingFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(c *fakeClassifier)
	}{
		{name: "error", setup: func(c *fakeClassifier) { c.err = errors.New("imap timeout") }},
		{name: "panic", setup: func(c *fakeClassifier) { c.panics = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			tt.setup(f.classifier)

			got := f.job.Run(context.Background(), model.JobArgument{AccountID: 42})

			if got != OutcomeFailed {
				t.Errorf("outcome: got %v, want %v", got, OutcomeFailed)
			}
			if len(f.classifier.trained) != 1 {
				t.Errorf("train calls: got %d, want 1", len(f.classifier.trained))
			}
			if len(f.jobList.removed) != 0 {
				t.Errorf("entry must not be removed, got %v", f.jobList.removed)
			}
		})
	}
}

func TestTrainJob_NilAccountFails(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.accounts.accounts[45] = nil

	outcome := f.job.Run(context.Background(), model.JobArgument{AccountID: 45})
	if outcome != OutcomeFailed {
		t.Errorf("outcome: got %v, want %v", outcome, OutcomeFailed)
	}
	if len(f.classifier.trained) != 0 || len(f.jobList.removed) != 0 {
		t.Errorf("trained %v removed %v, want neither", f.classifier.trained, f.jobList.removed)
	}
}

func TestTrainJob_RemovesEntryInAnySpelling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, path := testutil.NewFileTestStore(t)

	testutil.ExecRaw(t, path,
		"INSERT INTO job_list (kind, argument) VALUES (?, ?)",
		KindTrainImportanceClassifier, `{"accountId": 7}`)
	if err := s.AddJob(ctx, KindTrainImportanceClassifier, model.JobArgument{AccountID: 8}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	f := newFixture()
	job := NewTrainImportanceClassifierJob(Deps{
		Accounts:   f.accounts,
		Settings:   f.settings,
		Classifier: f.classifier,
		JobList:    s,
		Logger:     discardLogger(),
	})

	if outcome := job.Run(ctx, model.JobArgument{AccountID: 7}); outcome != OutcomeRemoved {
		t.Fatalf("outcome: got %v, want %v", outcome, OutcomeRemoved)
	}

	entries, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(entries) != 1 || entries[0].Argument.AccountID != 8 {
		t.Errorf("entries: got %+v, want only account 8", entries)
	}
}
