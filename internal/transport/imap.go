package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/nhle/mailjobs/internal/model"
)

// Envelope holds the envelope data of a message fetched over IMAP.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string
	UID       uint32
}

// HasFlag reports whether the envelope carries flag.
func (e Envelope) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IMAPMailboxes reads and writes an account's mailboxes over IMAP. Every
// call opens its own connection, so the type is safe for concurrent use.
type IMAPMailboxes struct {
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewIMAPMailboxes creates an IMAPMailboxes. A nil tlsConfig uses the
// system defaults.
func NewIMAPMailboxes(tlsConfig *tls.Config, logger *slog.Logger) *IMAPMailboxes {
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPMailboxes{tlsConfig: tlsConfig, logger: logger}
}

// connect establishes a connection to the account's IMAP server and
// authenticates. The caller must log out of the returned client.
func (m *IMAPMailboxes) connect(
	ctx context.Context,
	account *model.Account,
) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(account.InboundHost, strconv.Itoa(account.InboundPort))

	opts := &imapclient.Options{TLSConfig: m.tlsConfig}
	if opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{ServerName: account.InboundHost}
	}

	var client *imapclient.Client
	var err error
	if account.InboundTLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if account.AuthMethod == model.AuthMethodXOAuth2 {
		err = client.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: account.InboundUser,
			Token:    account.OAuthToken,
			Host:     account.InboundHost,
			Port:     account.InboundPort,
		}))
	} else {
		err = client.Login(account.InboundUser, account.InboundPassword).Wait()
	}
	if err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", account.InboundUser, err)
	}

	return client, nil
}

// Append stores raw in mailbox with the given flags and returns the UID
// assigned by the server, or 0 when the server does not report one.
func (m *IMAPMailboxes) Append(
	ctx context.Context,
	account *model.Account,
	mailbox string,
	raw []byte,
	flags ...string,
) (uint32, error) {
	client, err := m.connect(ctx, account)
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Logout().Wait() }()

	appendCmd := client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: toIMAPFlags(flags),
		Time:  time.Now(),
	})
	if _, err := appendCmd.Write(raw); err != nil {
		_ = appendCmd.Close()
		return 0, fmt.Errorf("writing message to %s: %w", mailbox, err)
	}
	if err := appendCmd.Close(); err != nil {
		return 0, fmt.Errorf("closing append to %s: %w", mailbox, err)
	}

	data, err := appendCmd.Wait()
	if err != nil {
		return 0, fmt.Errorf("appending to %s: %w", mailbox, err)
	}

	return uint32(data.UID), nil
}

// Delete marks the message deleted and expunges it. Servers without
// UIDPLUS fall back to a plain EXPUNGE of the selected mailbox.
func (m *IMAPMailboxes) Delete(
	ctx context.Context,
	account *model.Account,
	mailbox string,
	uid uint32,
) error {
	client, err := m.connect(ctx, account)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging UID %d deleted: %w", uid, err)
	}

	var expungeCmd *imapclient.ExpungeCommand
	if client.Caps().Has(imap.CapUIDPlus) {
		expungeCmd = client.UIDExpunge(uidSet)
	} else {
		expungeCmd = client.Expunge()
	}
	if err := expungeCmd.Close(); err != nil {
		return fmt.Errorf("expunging UID %d: %w", uid, err)
	}

	return nil
}

// AddFlags adds flags to a message.
func (m *IMAPMailboxes) AddFlags(
	ctx context.Context,
	account *model.Account,
	mailbox string,
	uid uint32,
	flags ...string,
) error {
	client, err := m.connect(ctx, account)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	storeCmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  toIMAPFlags(flags),
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing flags on UID %d: %w", uid, err)
	}
	return nil
}

// FetchEnvelopes returns the envelopes of messages in mailbox received
// since the given time, keeping at most limit of the most recent ones.
func (m *IMAPMailboxes) FetchEnvelopes(
	ctx context.Context,
	account *model.Account,
	mailbox string,
	since time.Time,
	limit int,
) ([]Envelope, error) {
	client, err := m.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			m.logger.Warn("skipping message that could not be read",
				"account_id", account.ID, "mailbox", mailbox, "seq", msg.SeqNum, "error", err)
			continue
		}
		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, fmt.Errorf("fetching envelopes: %w", err)
	}

	return envelopes, nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer. From
// holds the bare address so senders group consistently.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}

		for _, to := range buf.Envelope.To {
			env.To = append(env.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

func toIMAPFlags(flags []string) []imap.Flag {
	out := make([]imap.Flag, 0, len(flags))
	for _, f := range flags {
		out = append(out, imap.Flag(f))
	}
	return out
}
