package model

import "time"

// Message flags and keywords.
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDraft    = `\Draft`
	FlagDeleted  = `\Deleted`
	FlagMDNSent  = "$MDNSent"
)

// Local message types.
const (
	LocalMessageTypeOutgoing = "outgoing"
	LocalMessageTypeDraft    = "draft"
)

// Recipient types.
const (
	RecipientTypeTo  = "to"
	RecipientTypeCc  = "cc"
	RecipientTypeBcc = "bcc"
)

// Message is a mail item stored in a mailbox on the server. Its identity
// is the pair (MailboxID, UID).
type Message struct {
	ID        int64  `json:"id" db:"id"`
	AccountID int64  `json:"account_id" db:"account_id"`
	MailboxID int64  `json:"mailbox_id" db:"mailbox_id"`
	UID       uint32 `json:"uid" db:"uid"`

	MessageID string   `json:"message_id" db:"message_id"`
	Subject   string   `json:"subject" db:"subject"`
	From      string   `json:"from" db:"from_addr"`
	To        []string `json:"to" db:"-"`
	Flags     []string `json:"flags" db:"-"`

	// DispositionNotificationTo is the address an MDN was requested for,
	// empty when the sender did not ask for one.
	DispositionNotificationTo string `json:"disposition_notification_to,omitempty" db:"disposition_notification_to"`

	SentAt time.Time `json:"sent_at" db:"sent_at"`
}

// HasFlag reports whether the message carries flag.
func (m *Message) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Recipient is a single addressee of a composed message.
type Recipient struct {
	Type  string `json:"type" db:"type"`
	Label string `json:"label" db:"label"`
	Email string `json:"email" db:"email"`
}

// Attachment is a file carried by a composed message.
type Attachment struct {
	Filename    string `json:"filename" db:"filename"`
	ContentType string `json:"content_type" db:"content_type"`
	Content     []byte `json:"-" db:"content"`
}

// LocalMessage is a message composed by the user that has not been sent
// yet, either queued for sending or kept as a local-only draft.
type LocalMessage struct {
	ID        int64  `json:"id" db:"id"`
	AccountID int64  `json:"account_id" db:"account_id"`
	Type      string `json:"type" db:"type"`
	Subject   string `json:"subject" db:"subject"`
	Body      string `json:"body" db:"body"`
	HTML      bool   `json:"html" db:"html"`

	// InReplyToMessageID is the Message-ID of the message being replied to.
	InReplyToMessageID string `json:"in_reply_to_message_id,omitempty" db:"in_reply_to_message_id"`

	// DraftID references the server-side draft this message was created from.
	DraftID *int64 `json:"draft_id,omitempty" db:"draft_id"`

	RequestMDN bool       `json:"request_mdn" db:"request_mdn"`
	SentAt     *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`

	Recipients  []Recipient  `json:"recipients" db:"-"`
	Attachments []Attachment `json:"attachments,omitempty" db:"-"`
}

// RecipientsOfType returns the recipients with the given type.
func (m *LocalMessage) RecipientsOfType(t string) []Recipient {
	var out []Recipient
	for _, r := range m.Recipients {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// NewMessageData is the payload for saving a draft to the Drafts mailbox.
type NewMessageData struct {
	Account *Account

	To  []Recipient
	Cc  []Recipient
	Bcc []Recipient

	Subject string
	Body    string
	HTML    bool

	Attachments []Attachment

	InReplyToMessageID string
	RequestMDN         bool
}
