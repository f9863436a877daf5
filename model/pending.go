package model

import "time"

// JoinArtifacts tracks the transient messages tied to one join episode. All of
// them are deleted together when the member resolves, times out or re-joins.
type JoinArtifacts struct {
	JoinNoticeID  string
	CaptchaMsgID  string
	WrongNoticeID string
}

// PendingMember is one member awaiting captcha resolution in one chat. At most
// one live entry exists per (ChatID, MemberID); a re-join replaces the entry
// but carries Retries forward.
type PendingMember struct {
	ChatID    string
	MemberID  string
	Name      string
	Answer    string
	JoinedAt  time.Time
	Retries   int
	Kicked    bool
	Artifacts JoinArtifacts
}

// Deadline is the instant the member's challenge expires.
func (p PendingMember) Deadline(timeout time.Duration) time.Time {
	return p.JoinedAt.Add(timeout)
}

// ScheduledDeletion is one message the bot wants auto-removed at DeleteAt.
type ScheduledDeletion struct {
	ChatID    string
	MessageID string
	SenderID  string
	DeleteAt  time.Time
}
