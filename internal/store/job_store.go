package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

type jobRow struct {
	ID         int64      `db:"id"`
	Kind       string     `db:"kind"`
	Argument   string     `db:"argument"`
	LastRun    *time.Time `db:"last_run"`
	ReservedAt *time.Time `db:"reserved_at"`
}

// accountIDExpr extracts accountId from the stored argument. Rows holding
// malformed JSON yield NULL and never match.
const accountIDExpr = "CASE WHEN json_valid(argument) THEN json_extract(argument, '$.accountId') END"

// AddJob registers a (kind, argument) pair. Adding a pair that is already
// listed, in any JSON spelling, is a no-op.
func (s *SQLiteStore) AddJob(ctx context.Context, kind string, arg model.JobArgument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO job_list (kind, argument)
		SELECT ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM job_list WHERE kind = ? AND `+accountIDExpr+` = ?
		)`,
		kind, arg.Encode(), kind, arg.AccountID,
	)
	if err != nil {
		return fmt.Errorf("adding job %s %s: %w", kind, arg.Encode(), err)
	}
	return nil
}

// RemoveJob deletes every entry of kind whose argument names the same
// account. Removing an entry that is already gone succeeds.
func (s *SQLiteStore) RemoveJob(ctx context.Context, kind string, arg model.JobArgument) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM job_list WHERE kind = ? AND "+accountIDExpr+" = ?",
		kind, arg.AccountID,
	)
	if err != nil {
		return fmt.Errorf("removing job %s %s: %w", kind, arg.Encode(), err)
	}
	return nil
}

// RemoveJobByID deletes a single entry. A missing entry is not an error.
func (s *SQLiteStore) RemoveJobByID(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM job_list WHERE id = ?", id); err != nil {
		return fmt.Errorf("removing job %d: %w", id, err)
	}
	return nil
}

// ListJobs returns every registered entry, oldest first. An entry whose
// argument cannot be decoded is still returned, with ArgumentErr set.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]model.JobListEntry, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, argument, last_run, reserved_at
		FROM job_list ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	entries := make([]model.JobListEntry, 0, len(rows))
	for _, r := range rows {
		entry := model.JobListEntry{
			ID:         r.ID,
			Kind:       r.Kind,
			ReservedAt: r.ReservedAt,
		}
		entry.Argument, entry.ArgumentErr = model.DecodeJobArgument(r.Argument)
		if r.LastRun != nil {
			entry.LastRun = *r.LastRun
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReserveJob claims an entry for a run starting at and stamps its last
// run. It reports false when another run holds a reservation younger
// than ttl. A missing entry is reported as not reserved.
func (s *SQLiteStore) ReserveJob(ctx context.Context, id int64, at time.Time, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var reservedAt *time.Time
	err = tx.GetContext(ctx, &reservedAt, "SELECT reserved_at FROM job_list WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading reservation of job %d: %w", id, err)
	}
	if reservedAt != nil && at.Sub(*reservedAt) < ttl {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE job_list SET reserved_at = ?, last_run = ? WHERE id = ?",
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("reserving job %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing reservation of job %d: %w", id, err)
	}
	return true, nil
}

// ReleaseJob clears the reservation of an entry. Releasing an entry that
// was removed during its run is not an error.
func (s *SQLiteStore) ReleaseJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE job_list SET reserved_at = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("releasing job %d: %w", id, err)
	}
	return nil
}
