// Package transmission sends, drafts and acknowledges messages on behalf
// of an account, keeping the local cache and the server mailboxes in step.
package transmission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
	"github.com/nhle/mailjobs/internal/transport"
)

// MessageStore is the local cache of mailboxes and messages.
type MessageStore interface {
	GetMailbox(ctx context.Context, id int64) (*model.Mailbox, error)

	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	InsertMessage(ctx context.Context, msg *model.Message) error
	DeleteMessage(ctx context.Context, id int64) error
	AddMessageFlags(ctx context.Context, id int64, flags ...string) error
	FindMessageByMessageID(ctx context.Context, accountID int64, messageID string) (*model.Message, error)

	SaveLocalMessage(ctx context.Context, msg *model.LocalMessage) error
	MarkLocalMessageSent(ctx context.Context, id int64, at time.Time) error
}

// Mailboxes writes to the account's server-side mailboxes.
type Mailboxes interface {
	Append(ctx context.Context, account *model.Account, mailbox string, raw []byte, flags ...string) (uint32, error)
	Delete(ctx context.Context, account *model.Account, mailbox string, uid uint32) error
	AddFlags(ctx context.Context, account *model.Account, mailbox string, uid uint32, flags ...string) error
}

// Deps bundles the collaborators of a Pipeline.
type Deps struct {
	Store     MessageStore
	Sender    transport.Sender
	Mailboxes Mailboxes

	// Hostname is the right-hand side of generated Message-IDs.
	Hostname string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline implements the message transmission operations. It keeps no
// state between calls and never retries.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.Hostname == "" {
		deps.Hostname = "localhost"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}
}

// SendMessage transmits msg and files it into the account's Sent mailbox.
// Once the transport accepted the message it is marked sent, even if
// filing fails afterwards.
func (p *Pipeline) SendMessage(ctx context.Context, account *model.Account, msg *model.LocalMessage) error {
	if account == nil || msg == nil {
		return clientError("account and message are required")
	}

	sent, err := p.sentMailbox(ctx, account)
	if err != nil {
		return err
	}

	if msg.AccountID != account.ID {
		return clientError("message %d does not belong to account %d", msg.ID, account.ID)
	}
	if msg.SentAt != nil {
		return clientError("message %d was already sent", msg.ID)
	}

	out, err := p.compose(account, contentFromLocal(msg), true)
	if err != nil {
		return err
	}

	logger := p.deps.Logger.With("account_id", account.ID, "local_message_id", msg.ID)

	if err := p.deps.Sender.Send(ctx, account, account.Email, out.rcpts, out.raw); err != nil {
		return serviceError(err, "could not send message")
	}

	now := p.deps.Now().UTC()
	msg.SentAt = &now
	var markErr error
	if msg.ID != 0 {
		markErr = p.deps.Store.MarkLocalMessageSent(ctx, msg.ID, now)
	}

	uid, err := p.deps.Mailboxes.Append(ctx, account, sent.Name, out.raw, model.FlagSeen)
	if err != nil {
		logger.Error("message was sent but could not be filed", "mailbox", sent.Name, "error", err)
		return serviceError(err, "message was sent but could not be filed")
	}
	if markErr != nil {
		return serviceError(markErr, "message was sent but could not be marked sent")
	}

	if uid != 0 {
		cached := &model.Message{
			AccountID: account.ID,
			MailboxID: sent.ID,
			UID:       uid,
			MessageID: out.messageID,
			Subject:   msg.Subject,
			From:      account.Email,
			To:        out.to,
			Flags:     []string{model.FlagSeen},
			SentAt:    now,
		}
		if err := p.deps.Store.InsertMessage(ctx, cached); err != nil {
			return serviceError(err, "message was sent but could not be cached")
		}
	}

	logger.Info("message sent", "message_id", out.messageID, "provider", p.deps.Sender.Name())

	p.markAnswered(ctx, account, msg.InReplyToMessageID, logger)
	if msg.DraftID != nil {
		if err := p.deleteMessage(ctx, account, *msg.DraftID); err != nil {
			logger.Warn("could not delete draft of sent message", "draft_id", *msg.DraftID, "error", err)
		}
	}

	return nil
}

// SaveLocalDraft stores msg as a local-only draft.
func (p *Pipeline) SaveLocalDraft(ctx context.Context, account *model.Account, msg *model.LocalMessage) error {
	if account == nil || msg == nil {
		return clientError("account and message are required")
	}
	if msg.AccountID == 0 {
		msg.AccountID = account.ID
	}
	if msg.AccountID != account.ID {
		return clientError("message %d does not belong to account %d", msg.ID, account.ID)
	}

	for _, r := range msg.Recipients {
		if _, err := parseRecipient(r); err != nil {
			return err
		}
	}

	msg.Type = model.LocalMessageTypeDraft
	if err := p.deps.Store.SaveLocalMessage(ctx, msg); err != nil {
		return serviceError(err, "could not save local draft")
	}
	return nil
}

// sentMailbox resolves the account's Sent mailbox.
func (p *Pipeline) sentMailbox(ctx context.Context, account *model.Account) (*model.Mailbox, error) {
	if account.SentMailboxID == nil {
		return nil, newError(KindSentMailboxNotSet, nil, "sent mailbox is not set for account %d", account.ID)
	}

	mb, err := p.deps.Store.GetMailbox(ctx, *account.SentMailboxID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindSentMailboxNotSet, err, "sent mailbox of account %d no longer exists", account.ID)
	}
	if err != nil {
		return nil, serviceError(err, "could not load sent mailbox")
	}
	if mb.AccountID != account.ID {
		return nil, newError(KindSentMailboxNotSet, nil, "sent mailbox %d does not belong to account %d", mb.ID, account.ID)
	}
	return mb, nil
}

// markAnswered flags the replied-to message. Failures are logged only.
func (p *Pipeline) markAnswered(ctx context.Context, account *model.Account, messageID string, logger *slog.Logger) {
	if messageID == "" {
		return
	}

	orig, err := p.deps.Store.FindMessageByMessageID(ctx, account.ID, bareID(messageID))
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("could not look up replied-to message", "in_reply_to", messageID, "error", err)
		return
	}

	mb, err := p.deps.Store.GetMailbox(ctx, orig.MailboxID)
	if err != nil {
		logger.Warn("could not load mailbox of replied-to message", "in_reply_to", messageID, "error", err)
		return
	}

	if err := p.deps.Mailboxes.AddFlags(ctx, account, mb.Name, orig.UID, model.FlagAnswered); err != nil {
		logger.Warn("could not flag replied-to message", "in_reply_to", messageID, "error", err)
		return
	}
	if err := p.deps.Store.AddMessageFlags(ctx, orig.ID, model.FlagAnswered); err != nil {
		logger.Warn("could not cache answered flag", "message_id", orig.ID, "error", err)
	}
}

// deleteMessage removes a cached message from its server mailbox and
// from the cache.
func (p *Pipeline) deleteMessage(ctx context.Context, account *model.Account, id int64) error {
	msg, err := p.deps.Store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	return p.deleteCached(ctx, account, msg)
}

func (p *Pipeline) deleteCached(ctx context.Context, account *model.Account, msg *model.Message) error {
	mb, err := p.deps.Store.GetMailbox(ctx, msg.MailboxID)
	if err != nil {
		return err
	}
	if err := p.deps.Mailboxes.Delete(ctx, account, mb.Name, msg.UID); err != nil {
		return err
	}
	return p.deps.Store.DeleteMessage(ctx, msg.ID)
}
