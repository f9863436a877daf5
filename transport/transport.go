package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed transport call so callers can branch on the
// failure class instead of matching error strings.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindNotFound covers deleted messages, members who already left and
	// chats the bot is no longer part of.
	KindNotFound
	// KindNoPermission means the bot lacks the rights for the operation.
	KindNoPermission
	// KindTargetIsAdmin means the sanction target outranks the bot.
	KindTargetIsAdmin
	// KindTimeout means the call timed out and its outcome is unknown.
	KindTimeout
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not-found"
	case KindNoPermission:
		return "no-permission"
	case KindTargetIsAdmin:
		return "target-is-admin"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error wraps a transport failure with its classification.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err. A nil error is KindNone and an
// unclassified error is KindOther.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindOther
}

// Button is an inline affordance attached to a sent or edited message.
type Button struct {
	Label string
	ID    string
}

// ChatInfo describes a chat as far as admission control cares.
type ChatInfo struct {
	ID    string
	Title string
	Link  string
	// Broadcast chats cannot run a member challenge; the bot leaves them.
	Broadcast bool
}

// Messenger is the capability contract the admission controller consumes from
// the messaging transport. Every method may fail with a *Error carrying an
// ErrorKind; implementations must bound each call with a timeout.
type Messenger interface {
	// SelfID returns the bot's own member id.
	SelfID() string

	SendMessage(chatID, text string) (messageID string, err error)
	SendPhoto(chatID, caption string, image []byte, button *Button) (messageID string, err error)
	EditPhoto(chatID, messageID, caption string, image []byte, button *Button) error
	DeleteMessage(chatID, messageID string) error

	// RestrictToText downgrades a member to text-only messages.
	RestrictToText(chatID, memberID string) error
	// KickAndUnban removes a member but immediately allows re-joining.
	KickAndUnban(chatID, memberID, reason string) error
	BanPermanently(chatID, memberID, reason string) error

	IsAdmin(chatID, memberID string) (bool, error)
	ChatInfo(chatID string) (ChatInfo, error)
	CreateInviteLink(chatID string) (string, error)
	LeaveChat(chatID string) error
}
