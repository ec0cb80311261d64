package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

// IsClassificationEnabled reports the user's classification preference.
// Users without a stored preference are enabled.
func (s *SQLiteStore) IsClassificationEnabled(ctx context.Context, userID string) (bool, error) {
	var settings model.ClassificationSettings
	err := s.db.GetContext(ctx, &settings,
		"SELECT user_id, enabled FROM classification_settings WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading classification settings for %s: %w", userID, err)
	}
	return settings.Enabled, nil
}

// SetClassificationEnabled stores the user's classification preference.
func (s *SQLiteStore) SetClassificationEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_settings (user_id, enabled) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET enabled = excluded.enabled`,
		userID, boolToInt(enabled),
	)
	if err != nil {
		return fmt.Errorf("saving classification settings for %s: %w", userID, err)
	}
	return nil
}

// ReplaceSenderScores atomically swaps the trained scores of an account.
func (s *SQLiteStore) ReplaceSenderScores(
	ctx context.Context,
	accountID int64,
	scores []model.SenderScore,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sender_scores WHERE account_id = ?", accountID,
	); err != nil {
		return fmt.Errorf("clearing scores of account %d: %w", accountID, err)
	}

	for _, sc := range scores {
		trainedAt := sc.TrainedAt
		if trainedAt.IsZero() {
			trainedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sender_scores (account_id, sender, total, important, score, trained_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			accountID, sc.Sender, sc.Total, sc.Important, sc.Score, trainedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting score for %s: %w", sc.Sender, err)
		}
	}

	return tx.Commit()
}

// ListSenderScores returns an account's scores, highest first.
func (s *SQLiteStore) ListSenderScores(ctx context.Context, accountID int64) ([]model.SenderScore, error) {
	var scores []model.SenderScore
	err := s.db.SelectContext(ctx, &scores, `
		SELECT account_id, sender, total, important, score, trained_at
		FROM sender_scores WHERE account_id = ?
		ORDER BY score DESC, sender`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing scores of account %d: %w", accountID, err)
	}
	return scores, nil
}
