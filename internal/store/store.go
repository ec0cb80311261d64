package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mailjobs/internal/model"
)

// ErrNotFound is returned (wrapped) when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for accounts, mailboxes,
// messages, local messages, the job list and classification state.
type Store interface {
	// === Accounts ===

	CreateAccount(ctx context.Context, account *model.Account) error
	UpdateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error

	// === Mailboxes ===

	UpsertMailbox(ctx context.Context, mailbox *model.Mailbox) error
	GetMailbox(ctx context.Context, id int64) (*model.Mailbox, error)
	ListMailboxes(ctx context.Context, accountID int64) ([]model.Mailbox, error)

	// === Messages (server-side cache) ===

	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	AddMessageFlags(ctx context.Context, id int64, flags ...string) error
	FindMessageByMessageID(ctx context.Context, accountID int64, messageID string) (*model.Message, error)

	// === Local messages ===

	SaveLocalMessage(ctx context.Context, msg *model.LocalMessage) error
	GetLocalMessage(ctx context.Context, id int64) (*model.LocalMessage, error)
	MarkLocalMessageSent(ctx context.Context, id int64, at time.Time) error
	DeleteLocalMessage(ctx context.Context, id int64) error

	// === Job list ===

	AddJob(ctx context.Context, kind string, arg model.JobArgument) error
	RemoveJob(ctx context.Context, kind string, arg model.JobArgument) error
	RemoveJobByID(ctx context.Context, id int64) error
	ListJobs(ctx context.Context) ([]model.JobListEntry, error)
	ReserveJob(ctx context.Context, id int64, at time.Time, ttl time.Duration) (bool, error)
	ReleaseJob(ctx context.Context, id int64) error

	// === Classification ===

	IsClassificationEnabled(ctx context.Context, userID string) (bool, error)
	SetClassificationEnabled(ctx context.Context, userID string, enabled bool) error
	ReplaceSenderScores(ctx context.Context, accountID int64, scores []model.SenderScore) error
	ListSenderScores(ctx context.Context, accountID int64) ([]model.SenderScore, error)

	// === Lifecycle ===

	Close() error
}
