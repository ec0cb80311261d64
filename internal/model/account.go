package model

import "time"

// Authentication methods for an account's inbound and outbound servers.
const (
	AuthMethodPassword = "password"
	AuthMethodXOAuth2  = "xoauth2"
)

// Account is a mail account owned by a user. Connection settings are
// persisted; secrets are resolved from the credential store on lookup.
type Account struct {
	ID     int64  `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`

	InboundHost string `json:"inbound_host" db:"inbound_host"`
	InboundPort int    `json:"inbound_port" db:"inbound_port"`
	InboundUser string `json:"inbound_user" db:"inbound_user"`
	InboundTLS  bool   `json:"inbound_tls" db:"inbound_tls"`

	OutboundHost string `json:"outbound_host" db:"outbound_host"`
	OutboundPort int    `json:"outbound_port" db:"outbound_port"`
	OutboundUser string `json:"outbound_user" db:"outbound_user"`
	OutboundTLS  bool   `json:"outbound_tls" db:"outbound_tls"`

	// AuthMethod is one of the AuthMethod* constants.
	AuthMethod string `json:"auth_method" db:"auth_method"`

	// SentMailboxID and DraftsMailboxID point at rows in the mailboxes
	// table. A nil value means the folder has not been configured.
	SentMailboxID   *int64 `json:"sent_mailbox_id,omitempty" db:"sent_mailbox_id"`
	DraftsMailboxID *int64 `json:"drafts_mailbox_id,omitempty" db:"drafts_mailbox_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	InboundPassword  string `json:"-" db:"-"`
	OutboundPassword string `json:"-" db:"-"`
	OAuthToken       string `json:"-" db:"-"`
}

// CanAuthenticateIMAP reports whether enough credentials are known to log
// in to the inbound server.
func (a *Account) CanAuthenticateIMAP() bool {
	if a.AuthMethod == AuthMethodXOAuth2 {
		return a.OAuthToken != ""
	}
	return a.InboundPassword != ""
}

// SMTPPassword returns the outbound password, falling back to the inbound
// one for providers that share a single login.
func (a *Account) SMTPPassword() string {
	if a.OutboundPassword != "" {
		return a.OutboundPassword
	}
	return a.InboundPassword
}

// SMTPUser returns the outbound login name, defaulting to the inbound user.
func (a *Account) SMTPUser() string {
	if a.OutboundUser != "" {
		return a.OutboundUser
	}
	return a.InboundUser
}
