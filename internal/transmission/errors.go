package transmission

import (
	"errors"
	"fmt"
)

// Kind classifies a transmission failure.
type Kind int

const (
	// KindService covers transport, storage and composition faults. The
	// caller decides whether to retry.
	KindService Kind = iota
	// KindClient means the caller supplied invalid input.
	KindClient
	// KindSentMailboxNotSet means the account has no Sent mailbox, so a
	// message could not be filed after sending.
	KindSentMailboxNotSet
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindClient:
		return "client"
	case KindSentMailboxNotSet:
		return "sent mailbox not set"
	default:
		return "unknown"
	}
}

// Error is returned by every Pipeline operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func serviceError(err error, format string, args ...any) *Error {
	return newError(KindService, err, format, args...)
}

func clientError(format string, args ...any) *Error {
	return newError(KindClient, nil, format, args...)
}

// KindOf returns the kind of a transmission error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsClientError reports whether err was caused by invalid caller input.
func IsClientError(err error) bool { return isKind(err, KindClient) }

// IsServiceError reports whether err is a transport or storage fault.
func IsServiceError(err error) bool { return isKind(err, KindService) }

// IsSentMailboxNotSet reports whether err means the Sent mailbox is missing.
func IsSentMailboxNotSet(err error) bool { return isKind(err, KindSentMailboxNotSet) }
