package model

// Special-use attributes (RFC 6154) recognised on mailboxes.
const (
	SpecialUseInbox  = `\Inbox`
	SpecialUseSent   = `\Sent`
	SpecialUseDrafts = `\Drafts`
	SpecialUseTrash  = `\Trash`
	SpecialUseJunk   = `\Junk`
)

// Mailbox is a named folder within an account.
type Mailbox struct {
	ID         int64  `json:"id" db:"id"`
	AccountID  int64  `json:"account_id" db:"account_id"`
	Name       string `json:"name" db:"name"`
	SpecialUse string `json:"special_use" db:"special_use"`
}
