package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobArgument is the argument stored with every account-scoped job entry.
type JobArgument struct {
	AccountID int64 `json:"accountId"`
}

// Encode returns the canonical JSON form written by AddJob.
func (a JobArgument) Encode() string {
	b, _ := json.Marshal(a)
	return string(b)
}

// DecodeJobArgument parses a stored argument. Unknown keys are ignored;
// an argument without a positive accountId is rejected.
func DecodeJobArgument(raw string) (JobArgument, error) {
	var arg JobArgument
	if err := json.Unmarshal([]byte(raw), &arg); err != nil {
		return JobArgument{}, fmt.Errorf("decoding job argument %q: %w", raw, err)
	}
	if arg.AccountID <= 0 {
		return JobArgument{}, fmt.Errorf("job argument %q has no accountId", raw)
	}
	return arg, nil
}

// JobListEntry is a scheduled (kind, argument) pair in the job list.
type JobListEntry struct {
	ID         int64       `json:"id"`
	Kind       string      `json:"kind"`
	Argument   JobArgument `json:"argument"`
	LastRun    time.Time   `json:"last_run"`
	ReservedAt *time.Time  `json:"reserved_at,omitempty"`

	// ArgumentErr is set when the stored argument could not be decoded.
	ArgumentErr error `json:"-"`
}

// SenderScore is the trained importance of one sender for one account.
type SenderScore struct {
	AccountID int64     `json:"account_id" db:"account_id"`
	Sender    string    `json:"sender" db:"sender"`
	Total     int       `json:"total" db:"total"`
	Important int       `json:"important" db:"important"`
	Score     float64   `json:"score" db:"score"`
	TrainedAt time.Time `json:"trained_at" db:"trained_at"`
}
