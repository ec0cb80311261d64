package transmission

import (
	"context"
	"errors"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
)

// SavedDraft locates a draft written to the Drafts mailbox.
type SavedDraft struct {
	Account *model.Account
	Mailbox *model.Mailbox

	// UID is the server UID, 0 when the server did not report one.
	UID       uint32
	MessageID string

	// ID is the cached message row, 0 when the draft was not cached.
	ID int64
}

// SaveDraft writes data to the account's Drafts mailbox. When previous is
// given it is deleted only after the new draft was written, so a failure
// in between leaves both drafts rather than neither.
func (p *Pipeline) SaveDraft(
	ctx context.Context,
	data model.NewMessageData,
	previous *model.Message,
) (*SavedDraft, error) {
	account := data.Account
	if account == nil {
		return nil, clientError("draft has no account")
	}

	drafts, err := p.draftsMailbox(ctx, account)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.AccountID != account.ID {
		return nil, clientError("previous draft %d does not belong to account %d", previous.ID, account.ID)
	}

	out, err := p.compose(account, contentFromNew(data), false)
	if err != nil {
		return nil, err
	}

	logger := p.deps.Logger.With("account_id", account.ID, "mailbox", drafts.Name)

	uid, err := p.deps.Mailboxes.Append(ctx, account, drafts.Name, out.raw, model.FlagDraft, model.FlagSeen)
	if err != nil {
		return nil, serviceError(err, "could not save draft")
	}

	saved := &SavedDraft{
		Account:   account,
		Mailbox:   drafts,
		UID:       uid,
		MessageID: out.messageID,
	}

	if uid != 0 {
		cached := &model.Message{
			AccountID: account.ID,
			MailboxID: drafts.ID,
			UID:       uid,
			MessageID: out.messageID,
			Subject:   data.Subject,
			From:      account.Email,
			To:        out.to,
			Flags:     []string{model.FlagDraft, model.FlagSeen},
			SentAt:    p.deps.Now().UTC(),
		}
		if err := p.deps.Store.InsertMessage(ctx, cached); err != nil {
			logger.Warn("could not cache draft", "uid", uid, "error", err)
		} else {
			saved.ID = cached.ID
		}
	}

	if previous != nil {
		if err := p.deleteCached(ctx, account, previous); err != nil {
			logger.Warn("could not remove previous draft", "previous_uid", previous.UID, "error", err)
		}
	}

	logger.Info("draft saved", "uid", uid, "message_id", out.messageID)
	return saved, nil
}

// draftsMailbox resolves the account's Drafts mailbox. A missing mailbox
// is the caller's configuration problem.
func (p *Pipeline) draftsMailbox(ctx context.Context, account *model.Account) (*model.Mailbox, error) {
	if account.DraftsMailboxID == nil {
		return nil, clientError("drafts mailbox is not set for account %d", account.ID)
	}

	mb, err := p.deps.Store.GetMailbox(ctx, *account.DraftsMailboxID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, clientError("drafts mailbox of account %d no longer exists", account.ID)
	}
	if err != nil {
		return nil, serviceError(err, "could not load drafts mailbox")
	}
	if mb.AccountID != account.ID {
		return nil, clientError("drafts mailbox %d does not belong to account %d", mb.ID, account.ID)
	}
	return mb, nil
}
