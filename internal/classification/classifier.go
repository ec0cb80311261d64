// Package classification trains per-account importance scores from the
// way the user handled recent inbox mail.
package classification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/transport"
)

const inboxName = "INBOX"

// EnvelopeFetcher lists recent envelopes of a mailbox.
type EnvelopeFetcher interface {
	FetchEnvelopes(ctx context.Context, account *model.Account, mailbox string, since time.Time, limit int) ([]transport.Envelope, error)
}

// ScoreStore persists trained scores.
type ScoreStore interface {
	ReplaceSenderScores(ctx context.Context, accountID int64, scores []model.SenderScore) error
}

// ImportanceClassifier scores senders by the share of their messages the
// user answered or flagged.
type ImportanceClassifier struct {
	fetcher EnvelopeFetcher
	scores  ScoreStore
	cfg     model.ClassifierConfig
	now     func() time.Time
}

// NewImportanceClassifier creates an ImportanceClassifier.
func NewImportanceClassifier(
	fetcher EnvelopeFetcher,
	scores ScoreStore,
	cfg model.ClassifierConfig,
) *ImportanceClassifier {
	return &ImportanceClassifier{
		fetcher: fetcher,
		scores:  scores,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Train rebuilds the sender scores of account. Too little history is not
// an error; the previous scores are kept.
func (c *ImportanceClassifier) Train(ctx context.Context, account *model.Account, logger *slog.Logger) error {
	now := c.now()
	since := now.AddDate(0, 0, -c.cfg.LookbackDays)

	envelopes, err := c.fetcher.FetchEnvelopes(ctx, account, inboxName, since, c.cfg.MaxMessages)
	if err != nil {
		return fmt.Errorf("fetching training data: %w", err)
	}

	if len(envelopes) < c.cfg.MinMessages {
		logger.Info("not enough messages to train importance classifier",
			"messages", len(envelopes),
			"required", c.cfg.MinMessages,
		)
		return nil
	}

	scores := Score(envelopes, account.ID, now)
	if err := c.scores.ReplaceSenderScores(ctx, account.ID, scores); err != nil {
		return fmt.Errorf("saving sender scores: %w", err)
	}

	logger.Info("importance classifier trained",
		"messages", len(envelopes),
		"senders", len(scores),
	)
	return nil
}

// Score aggregates envelopes per sender. A message counts as important
// when it was answered or flagged. Senders are returned in address order.
func Score(envelopes []transport.Envelope, accountID int64, trainedAt time.Time) []model.SenderScore {
	bySender := make(map[string]*model.SenderScore)

	for _, env := range envelopes {
		sender := strings.ToLower(strings.TrimSpace(env.From))
		if sender == "" {
			continue
		}

		sc, ok := bySender[sender]
		if !ok {
			sc = &model.SenderScore{
				AccountID: accountID,
				Sender:    sender,
				TrainedAt: trainedAt,
			}
			bySender[sender] = sc
		}

		sc.Total++
		if env.HasFlag(model.FlagAnswered) || env.HasFlag(model.FlagFlagged) {
			sc.Important++
		}
	}

	scores := make([]model.SenderScore, 0, len(bySender))
	for _, sc := range bySender {
		sc.Score = float64(sc.Important) / float64(sc.Total)
		scores = append(scores, *sc)
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Sender < scores[j].Sender
	})

	return scores
}
