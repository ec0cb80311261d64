// Package jobs runs recurring account-scoped background jobs from the
// persisted job list.
package jobs

import (
	"context"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

// Outcome is the terminal state of a single job run.
type Outcome int

const (
	// OutcomeTrained means the job did its work.
	OutcomeTrained Outcome = iota
	// OutcomeSkipped means a precondition was not met; the entry stays.
	OutcomeSkipped
	// OutcomeRemoved means the entry referenced a missing account and
	// was pruned.
	OutcomeRemoved
	// OutcomeFailed means the work was attempted and failed. The failure
	// has been logged.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTrained:
		return "trained"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRemoved:
		return "removed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is a recurring unit of work keyed by account.
type Job interface {
	Kind() string
	Interval() time.Duration

	// TimeSensitive jobs run as soon as they are due. Others may be held
	// back until the maintenance window.
	TimeSensitive() bool

	// Run never panics and never returns an error; failures are logged
	// and folded into the outcome.
	Run(ctx context.Context, arg model.JobArgument) Outcome
}

// JobList removes entries from the persisted job list.
type JobList interface {
	RemoveJob(ctx context.Context, kind string, arg model.JobArgument) error
}

// EntryStore is the persisted job list as seen by the Dispatcher.
type EntryStore interface {
	ListJobs(ctx context.Context) ([]model.JobListEntry, error)
	RemoveJobByID(ctx context.Context, id int64) error

	// ReserveJob claims an entry and stamps its last run; false means a
	// reservation younger than ttl is held elsewhere.
	ReserveJob(ctx context.Context, id int64, at time.Time, ttl time.Duration) (bool, error)
	ReleaseJob(ctx context.Context, id int64) error
}
