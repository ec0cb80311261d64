// Package transport moves raw RFC 5322 messages between the service and
// mail servers: outbound submission (SMTP, SES or a local mbox file) and
// IMAP mailbox access.
package transport

import (
	"context"
	"fmt"

	"github.com/nhle/mailjobs/internal/model"
)

// Sender submits a composed message for delivery.
type Sender interface {
	// Send delivers raw to every address in rcpts using from as the
	// envelope sender. Implementations do not retry.
	Send(ctx context.Context, account *model.Account, from string, rcpts []string, raw []byte) error

	// Name identifies the provider in logs.
	Name() string
}

// NewSender builds the Sender selected by cfg.Provider.
func NewSender(ctx context.Context, cfg model.OutboundConfig) (Sender, error) {
	switch cfg.Provider {
	case model.OutboundSMTP:
		return NewSMTPSender(), nil
	case model.OutboundSES:
		return NewSESSender(ctx, cfg.SES)
	case model.OutboundMbox:
		return NewMboxSender(cfg.MboxPath), nil
	default:
		return nil, fmt.Errorf("unknown outbound provider %q", cfg.Provider)
	}
}
