// Package selfdestruct removes bot-sent messages once their lifetime expires.
package selfdestruct

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gatekeeper/locale"
	"gatekeeper/model"
	"gatekeeper/store"
	"gatekeeper/transport"
)

// DefaultTTL is the lifetime applied to ordinary bot notices.
const DefaultTTL = 5 * time.Minute

// Scheduler owns the to-delete queue. Deletion is at-least-attempted: each
// sweep tries every due entry once; permanent failures drop the entry,
// transient ones leave it for the next pass.
type Scheduler struct {
	msgr  transport.Messenger
	cfg   *store.Store
	texts *locale.Table
	now   func() time.Time

	mu      sync.Mutex
	entries []model.ScheduledDeletion
}

func New(msgr transport.Messenger, cfg *store.Store, texts *locale.Table) *Scheduler {
	return &Scheduler{msgr: msgr, cfg: cfg, texts: texts, now: time.Now}
}

// SetClock overrides the scheduler's clock; tests inject a fake one.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// ScheduleIn marks a message for deletion after delay. Messages whose send
// outcome was unknown (empty id) are ignored.
func (s *Scheduler) ScheduleIn(chatID, messageID, senderID string, delay time.Duration) {
	if messageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, model.ScheduledDeletion{
		ChatID:    chatID,
		MessageID: messageID,
		SenderID:  senderID,
		DeleteAt:  s.now().Add(delay),
	})
}

// Len reports the number of queued deletions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep attempts every due deletion once. Entries that were deleted, already
// gone or undeletable for lack of permission are removed; the permission case
// additionally emits a one-shot notice that self-destructs in turn.
func (s *Scheduler) Sweep() {
	now := s.now()

	s.mu.Lock()
	var due, rest []model.ScheduledDeletion
	for _, e := range s.entries {
		if !e.DeleteAt.After(now) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	s.entries = rest
	s.mu.Unlock()

	for _, e := range due {
		err := s.msgr.DeleteMessage(e.ChatID, e.MessageID)
		switch transport.KindOf(err) {
		case transport.KindNone, transport.KindNotFound:
			// Done either way.
		case transport.KindNoPermission:
			s.notifyUndeletable(e.ChatID)
		default:
			log.Warn().Err(err).Str("chat", e.ChatID).Str("msg", e.MessageID).Msg("scheduled deletion failed, will retry")
			s.requeue(e)
		}
	}
}

func (s *Scheduler) requeue(e model.ScheduledDeletion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *Scheduler) notifyUndeletable(chatID string) {
	lang, _ := s.cfg.Get(chatID, model.KeyLanguage)
	msgID, err := s.msgr.SendMessage(chatID, s.texts.Text(lang, "CANT_DEL_MSG"))
	if err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("could not send can't-delete notice")
		return
	}
	s.ScheduleIn(chatID, msgID, s.msgr.SelfID(), DefaultTTL)
}
