package transmission

import (
	"context"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailjobs/internal/model"
)

// SendMdn sends a read receipt for msg, which must live in mailbox and
// have requested one. Each call sends exactly one notification; callers
// check the $MDNSent flag to avoid duplicates.
func (p *Pipeline) SendMdn(
	ctx context.Context,
	account *model.Account,
	mailbox *model.Mailbox,
	msg *model.Message,
) error {
	if account == nil || mailbox == nil || msg == nil {
		return serviceError(nil, "account, mailbox and message are required")
	}
	if mailbox.AccountID != account.ID {
		return serviceError(nil, "mailbox %d does not belong to account %d", mailbox.ID, account.ID)
	}
	if msg.MailboxID != mailbox.ID {
		return serviceError(nil, "message %d is not in mailbox %d", msg.ID, mailbox.ID)
	}
	if msg.DispositionNotificationTo == "" {
		return serviceError(nil, "message %d did not request a disposition notification", msg.ID)
	}

	rcpt, err := mail.ParseAddress(msg.DispositionNotificationTo)
	if err != nil {
		return serviceError(err, "invalid disposition notification address %q", msg.DispositionNotificationTo)
	}

	raw, err := p.composeMDN(account, msg, rcpt)
	if err != nil {
		return serviceError(err, "could not compose disposition notification")
	}

	if err := p.deps.Sender.Send(ctx, account, account.Email, []string{rcpt.Address}, raw); err != nil {
		return serviceError(err, "could not send disposition notification")
	}

	logger := p.deps.Logger.With("account_id", account.ID, "mailbox", mailbox.Name, "uid", msg.UID)
	logger.Info("disposition notification sent", "to", rcpt.Address)

	if err := p.deps.Mailboxes.AddFlags(ctx, account, mailbox.Name, msg.UID, model.FlagMDNSent); err != nil {
		logger.Warn("could not flag message as MDN sent", "error", err)
		return nil
	}
	if msg.ID != 0 {
		if err := p.deps.Store.AddMessageFlags(ctx, msg.ID, model.FlagMDNSent); err != nil {
			logger.Warn("could not cache MDN sent flag", "error", err)
		}
	}

	return nil
}
