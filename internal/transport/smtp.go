package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/nhle/mailjobs/internal/model"
)

// SMTPSender submits messages to the account's outbound server.
type SMTPSender struct{}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender() *SMTPSender {
	return &SMTPSender{}
}

// Name returns the provider name.
func (s *SMTPSender) Name() string {
	return model.OutboundSMTP
}

// Send dials the account's outbound server, authenticates and submits raw.
func (s *SMTPSender) Send(
	ctx context.Context,
	account *model.Account,
	from string,
	rcpts []string,
	raw []byte,
) error {
	addr := net.JoinHostPort(account.OutboundHost, strconv.Itoa(account.OutboundPort))
	tlsConfig := &tls.Config{ServerName: account.OutboundHost}

	var client *smtp.Client
	var err error
	if account.OutboundTLS {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}
	defer client.Close()

	if deadline, ok := ctx.Deadline(); ok {
		client.CommandTimeout = time.Until(deadline)
		client.SubmissionTimeout = time.Until(deadline)
	}

	if err := client.Auth(smtpAuth(account)); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := bytes.NewReader(raw).WriteTo(writer); err != nil {
		writer.Close()
		return fmt.Errorf("writing message body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}

	return client.Quit()
}

// smtpAuth picks the SASL mechanism for the account's auth method.
func smtpAuth(account *model.Account) sasl.Client {
	if account.AuthMethod == model.AuthMethodXOAuth2 {
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: account.SMTPUser(),
			Token:    account.OAuthToken,
			Host:     account.OutboundHost,
			Port:     account.OutboundPort,
		})
	}
	return sasl.NewPlainClient("", account.SMTPUser(), account.SMTPPassword())
}
