// Package admission decides who may stay in a chat: it issues captcha
// challenges to joining members, evaluates their answers and escalates
// sanctions when the deadline passes.
package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gatekeeper/captcha"
	"gatekeeper/locale"
	"gatekeeper/model"
	"gatekeeper/selfdestruct"
	"gatekeeper/store"
	"gatekeeper/transport"
)

const (
	// maxJoinRetries is the failed join cycle count that turns a kick into
	// a permanent ban.
	maxJoinRetries = 5
	// kickedPurgeGrace is how long a kicked entry survives past its
	// original deadline waiting for a re-join.
	kickedPurgeGrace = time.Hour
	// wrongAnswerGrace delays deletion of a plausible-but-wrong attempt so
	// fast typers can read what they got wrong.
	wrongAnswerGrace = time.Minute
	// captchaExtraTTL pads the challenge image lifetime past the deadline
	// so the sweep sanctions before the image disappears.
	captchaExtraTTL = 30 * time.Second

	maxNameLength = 35

	newCaptchaButtonPrefix = "newcaptcha:"
)

// JoinEvent is an inbound "member joined" notification.
type JoinEvent struct {
	ChatID       string
	ChatTitle    string
	ChatLink     string
	Broadcast    bool
	MemberID     string
	MemberName   string
	MemberIsBot  bool
	InviterLang  string
	JoinNoticeID string
}

// MessageEvent is an inbound message from a chat member.
type MessageEvent struct {
	ChatID     string
	MemberID   string
	MemberName string
	MessageID  string
	Text       string
	// EntityURLs are link targets embedded in the message, inspected in
	// addition to the visible text.
	EntityURLs []string
	IsText     bool
}

// Controller is the admission state machine. It owns the pending registry and
// the join artifacts; the self-destruct scheduler owns timed deletions.
type Controller struct {
	msgr  transport.Messenger
	gen   captcha.Generator
	cfg   *store.Store
	texts *locale.Table
	reg   *Registry
	sched *selfdestruct.Scheduler
	now   func() time.Time
}

func NewController(msgr transport.Messenger, gen captcha.Generator, cfg *store.Store,
	texts *locale.Table, sched *selfdestruct.Scheduler) *Controller {
	return &Controller{
		msgr:  msgr,
		gen:   gen,
		cfg:   cfg,
		texts: texts,
		reg:   NewRegistry(),
		sched: sched,
		now:   time.Now,
	}
}

// SetClock overrides the controller's clock; tests inject a fake one.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Registry exposes the pending table for tests and the status command.
func (c *Controller) Registry() *Registry { return c.reg }

// PendingCount reports how many members are mid-challenge.
func (c *Controller) PendingCount() int { return c.reg.Len() }

func (c *Controller) lang(chatID string) string {
	lang, _ := c.cfg.Get(chatID, model.KeyLanguage)
	return lang
}

func (c *Controller) captchaTimeout(chatID string) time.Duration {
	return time.Duration(c.cfg.GetInt(chatID, model.KeyCaptchaTime)) * time.Minute
}

// sendSelfDestruct sends text and schedules it for removal after ttl. A
// failed send yields no message id, so there is nothing to schedule.
func (c *Controller) sendSelfDestruct(chatID, text string, ttl time.Duration) string {
	msgID, err := c.msgr.SendMessage(chatID, text)
	if err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("send failed")
	}
	c.sched.ScheduleIn(chatID, msgID, c.msgr.SelfID(), ttl)
	return msgID
}

// truncateName cuts on rune boundaries so multi-byte names stay valid UTF-8.
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > maxNameLength {
		return string(runes[:maxNameLength])
	}
	return name
}

// HandleBotAdded runs when the bot itself is added to a chat: capture chat
// metadata, adopt the inviter's language and greet once.
func (c *Controller) HandleBotAdded(chatID, title, link, inviterLang string) {
	if title != "" {
		c.cfg.Set(chatID, model.KeyTitle, title)
	}
	if link != "" {
		c.cfg.Set(chatID, model.KeyLink, link)
	}
	lang := c.texts.Normalize(inviterLang)
	c.cfg.Set(chatID, model.KeyLanguage, lang)
	if _, err := c.msgr.SendMessage(chatID, c.texts.Text(lang, "START")); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("greeting failed")
	}
	log.Info().Str("chat", chatID).Str("lang", lang).Msg("added to chat")
}

// HandleJoin processes a member-join event per the chat's policy.
func (c *Controller) HandleJoin(ev JoinEvent) {
	if ev.MemberID == c.msgr.SelfID() {
		c.HandleBotAdded(ev.ChatID, ev.ChatTitle, ev.ChatLink, ev.InviterLang)
		return
	}
	lang := c.lang(ev.ChatID)
	if ev.Broadcast {
		c.sendSelfDestruct(ev.ChatID, c.texts.Text(lang, "BROADCAST_LEAVE"), time.Minute)
		if err := c.msgr.LeaveChat(ev.ChatID); err != nil {
			log.Warn().Err(err).Str("chat", ev.ChatID).Msg("leave failed")
		}
		return
	}
	if ev.ChatTitle != "" {
		c.cfg.Set(ev.ChatID, model.KeyTitle, ev.ChatTitle)
	}
	if ev.ChatLink != "" {
		c.cfg.Set(ev.ChatID, model.KeyLink, ev.ChatLink)
	}
	name := truncateName(ev.MemberName)

	if ev.MemberIsBot {
		log.Debug().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("bot joined, skipping challenge")
		return
	}
	if isAdmin, err := c.msgr.IsAdmin(ev.ChatID, ev.MemberID); err == nil && isAdmin {
		log.Debug().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("administrator joined, skipping challenge")
		return
	}
	for _, id := range c.cfg.GetStringSlice(ev.ChatID, model.KeyIgnoreList) {
		if id == ev.MemberID {
			log.Debug().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("ignored member joined, skipping challenge")
			return
		}
	}

	// Join-protection mode gates by authorization link, never by captcha.
	if c.cfg.GetBool(ev.ChatID, model.KeyProtected) {
		c.handleProtectedJoin(ev, lang, name)
		return
	}

	// A re-join supersedes the previous episode's artifacts.
	if prev, ok := c.reg.Lookup(ev.ChatID, ev.MemberID); ok {
		c.deleteArtifacts(ev.ChatID, prev.Artifacts, true)
	}

	if !c.cfg.GetBool(ev.ChatID, model.KeyEnabled) {
		return
	}

	difficulty := c.cfg.GetInt(ev.ChatID, model.KeyCaptchaDifficulty)
	mode, _ := c.cfg.Get(ev.ChatID, model.KeyCaptchaMode)
	challenge, err := c.gen.Generate(difficulty, mode)
	if err != nil {
		log.Error().Err(err).Str("chat", ev.ChatID).Msg("captcha generation failed")
		return
	}

	timeout := c.captchaTimeout(ev.ChatID)
	title, _ := c.cfg.Get(ev.ChatID, model.KeyTitle)
	caption := c.texts.Textf(lang, "NEW_MEMBER_CAPTCHA", name, title, int(timeout.Minutes()))
	button := &transport.Button{
		Label: c.texts.Text(lang, "OTHER_CAPTCHA_BTN"),
		ID:    newCaptchaButtonPrefix + ev.MemberID,
	}
	msgID, err := c.msgr.SendPhoto(ev.ChatID, caption, challenge.Image, button)
	if err != nil && transport.KindOf(err) != transport.KindTimeout {
		log.Warn().Err(err).Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("captcha send failed")
		return
	}
	// On timeout the send status is unknown; the member is admitted anyway
	// and the image, if it landed, is tracked for self-destruction.
	c.sched.ScheduleIn(ev.ChatID, msgID, c.msgr.SelfID(), timeout+captchaExtraTTL)

	c.reg.Admit(model.PendingMember{
		ChatID:   ev.ChatID,
		MemberID: ev.MemberID,
		Name:     name,
		Answer:   challenge.Answer,
		JoinedAt: c.now(),
		Retries:  1,
		Artifacts: model.JoinArtifacts{
			JoinNoticeID: ev.JoinNoticeID,
			CaptchaMsgID: msgID,
		},
	})
	log.Info().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("challenge issued")
}

// AttachJoinNotice links the chat's join system message to the member's
// pending entry so it is cleaned up with the other artifacts. The notice may
// arrive before the join event is processed, or for a member who was never
// challenged; those are dropped.
func (c *Controller) AttachJoinNotice(chatID, memberID, messageID string) bool {
	return c.reg.Update(chatID, memberID, func(p *model.PendingMember) {
		p.Artifacts.JoinNoticeID = messageID
	})
}

// handleProtectedJoin admits the single authorized requester inside their
// grant window and kicks everyone else.
func (c *Controller) handleProtectedJoin(ev JoinEvent, lang, name string) {
	currentUser, _ := c.cfg.Get(ev.ChatID, model.KeyProtectionUser)
	grantedAt := c.cfg.GetInt64(ev.ChatID, model.KeyProtectionTime)
	window := c.captchaTimeout(ev.ChatID)
	if currentUser == ev.MemberID && !c.now().After(time.Unix(grantedAt, 0).Add(window)) {
		c.cfg.Set(ev.ChatID, model.KeyProtectionUser, "")
		c.cfg.SetInt64(ev.ChatID, model.KeyProtectionTime, 0)
		c.sendWelcome(ev.ChatID, ev.MemberID, name)
		log.Info().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("authorized join accepted")
		return
	}
	err := c.msgr.KickAndUnban(ev.ChatID, ev.MemberID, "join protection")
	c.notifyKickOutcome(ev.ChatID, lang, name, err)
	log.Info().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("unauthorized join kicked")
}

// RequestAccess implements the join-protection link request: the single
// authorization slot is granted if free or expired, and the reply text tells
// the requester the link or how long the slot stays busy.
func (c *Controller) RequestAccess(chatID, memberID string) string {
	lang := c.lang(chatID)
	window := c.captchaTimeout(chatID)
	currentUser, _ := c.cfg.Get(chatID, model.KeyProtectionUser)
	grantedAt := time.Unix(c.cfg.GetInt64(chatID, model.KeyProtectionTime), 0)
	if currentUser != "" && currentUser != memberID && c.now().Before(grantedAt.Add(window)) {
		minsLeft := int(grantedAt.Add(window).Sub(c.now()).Minutes())
		return c.texts.Textf(lang, "PROTECTION_IN_PROCESS", minsLeft)
	}
	link, err := c.msgr.CreateInviteLink(chatID)
	if err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("invite link creation failed")
		return c.texts.Text(lang, "MEMBER_KICK_FAILED")
	}
	c.cfg.Set(chatID, model.KeyProtectionUser, memberID)
	c.cfg.SetInt64(chatID, model.KeyProtectionTime, c.now().Unix())
	return c.texts.Textf(lang, "PROTECTION_SEND_LINK", link, int(window.Minutes()))
}

// HandleMessage evaluates a message against the sender's pending challenge.
// It returns false when the sender is not pending in this chat.
func (c *Controller) HandleMessage(ev MessageEvent) bool {
	entry, ok := c.reg.Lookup(ev.ChatID, ev.MemberID)
	if !ok {
		return false
	}
	lang := c.lang(ev.ChatID)

	if !ev.IsText {
		if err := c.msgr.DeleteMessage(ev.ChatID, ev.MessageID); err != nil {
			log.Warn().Err(err).Str("chat", ev.ChatID).Msg("non-text delete failed")
		}
		c.sendSelfDestruct(ev.ChatID,
			c.texts.Textf(lang, "NOT_TEXT_MSG_ALLOWED", entry.Name), selfdestruct.DefaultTTL)
		return true
	}

	text := ev.Text
	for _, u := range ev.EntityURLs {
		text = fmt.Sprintf("%s [%s]", text, u)
	}

	if strings.Contains(strings.ToLower(text), strings.ToLower(entry.Answer)) {
		c.resolveSolved(ev, entry)
		return true
	}

	// A 4-character or purely numeric message is a plausible attempt:
	// replace the previous wrong-answer notice and remove the attempt
	// after a grace window instead of instantly.
	if len(ev.Text) == 4 || isNumeric(ev.Text) {
		key := "CAPTCHA_INCORRECT_0"
		if isNumeric(ev.Text) {
			key = "CAPTCHA_INCORRECT_1"
		}
		if entry.Artifacts.WrongNoticeID != "" {
			if err := c.msgr.DeleteMessage(ev.ChatID, entry.Artifacts.WrongNoticeID); err != nil {
				log.Debug().Err(err).Str("chat", ev.ChatID).Msg("stale wrong-answer notice delete failed")
			}
		}
		noticeID := c.sendSelfDestruct(ev.ChatID, c.texts.Text(lang, key), selfdestruct.DefaultTTL)
		c.reg.Update(ev.ChatID, ev.MemberID, func(p *model.PendingMember) {
			p.Artifacts.WrongNoticeID = noticeID
		})
		c.sched.ScheduleIn(ev.ChatID, ev.MessageID, ev.MemberID, wrongAnswerGrace)
		return true
	}

	if looksLikeSpam(text) {
		rmErr := c.msgr.DeleteMessage(ev.ChatID, ev.MessageID)
		key := "SPAM_DETECTED_RM"
		if transport.KindOf(rmErr) == transport.KindNoPermission {
			key = "SPAM_DETECTED_NOT_RM"
		}
		log.Info().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("spam detected from pending member")
		c.sendSelfDestruct(ev.ChatID, c.texts.Textf(lang, key, entry.Name), c.captchaTimeout(ev.ChatID))
		return true
	}
	return true
}

func (c *Controller) resolveSolved(ev MessageEvent, entry model.PendingMember) {
	c.deleteArtifacts(ev.ChatID, entry.Artifacts, false)
	if err := c.msgr.DeleteMessage(ev.ChatID, ev.MessageID); err != nil {
		log.Debug().Err(err).Str("chat", ev.ChatID).Msg("answer message delete failed")
	}
	c.reg.Resolve(ev.ChatID, ev.MemberID)
	c.sendWelcome(ev.ChatID, ev.MemberID, entry.Name)
	if c.cfg.GetBool(ev.ChatID, model.KeyRestrictNonText) {
		if err := c.msgr.RestrictToText(ev.ChatID, ev.MemberID); err != nil {
			log.Warn().Err(err).Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("restrict failed")
		}
	}
	log.Info().Str("chat", ev.ChatID).Str("member", ev.MemberID).Msg("challenge solved")
}

// HandleNewCaptchaButton regenerates the challenge for a pending member and
// edits the existing image message in place. The expected answer only changes
// when the edit goes through.
func (c *Controller) HandleNewCaptchaButton(chatID, memberID, messageID string) {
	entry, ok := c.reg.Lookup(chatID, memberID)
	if !ok {
		return
	}
	lang := c.lang(chatID)
	difficulty := c.cfg.GetInt(chatID, model.KeyCaptchaDifficulty)
	mode, _ := c.cfg.Get(chatID, model.KeyCaptchaMode)
	challenge, err := c.gen.Generate(difficulty, mode)
	if err != nil {
		log.Error().Err(err).Str("chat", chatID).Msg("captcha regeneration failed")
		return
	}
	timeout := c.captchaTimeout(chatID)
	title, _ := c.cfg.Get(chatID, model.KeyTitle)
	caption := c.texts.Textf(lang, "NEW_MEMBER_CAPTCHA", entry.Name, title, int(timeout.Minutes()))
	button := &transport.Button{
		Label: c.texts.Text(lang, "OTHER_CAPTCHA_BTN"),
		ID:    newCaptchaButtonPrefix + memberID,
	}
	if err := c.msgr.EditPhoto(chatID, messageID, caption, challenge.Image, button); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Str("member", memberID).Msg("captcha edit failed, keeping old answer")
		return
	}
	c.reg.Update(chatID, memberID, func(p *model.PendingMember) {
		p.Answer = challenge.Answer
	})
	log.Info().Str("chat", chatID).Str("member", memberID).Msg("challenge regenerated")
}

// sendWelcome expands the chat's welcome template and sends it with the
// default lifetime. The "-" sentinel disables it.
func (c *Controller) sendWelcome(chatID, memberID, name string) {
	template, _ := c.cfg.Get(chatID, model.KeyWelcomeMsg)
	if template == model.WelcomeDisabled {
		return
	}
	msg := strings.NewReplacer(
		"$user", name,
		"$name", name,
		"$id", memberID,
		"$link", "https://discord.com/users/"+memberID,
	).Replace(template)
	c.sendSelfDestruct(chatID, msg, selfdestruct.DefaultTTL)
}

// deleteArtifacts best-effort deletes the messages of one join episode.
// The join notice is normally left alone; a re-join removes it too.
func (c *Controller) deleteArtifacts(chatID string, a model.JoinArtifacts, includeJoinNotice bool) {
	ids := []string{a.CaptchaMsgID, a.WrongNoticeID}
	if includeJoinNotice {
		ids = append(ids, a.JoinNoticeID)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := c.msgr.DeleteMessage(chatID, id); err != nil {
			log.Debug().Err(err).Str("chat", chatID).Str("msg", id).Msg("artifact delete failed")
		}
	}
}

func (c *Controller) notifyKickOutcome(chatID, lang, name string, err error) {
	switch transport.KindOf(err) {
	case transport.KindNone:
		c.sendSelfDestruct(chatID, c.texts.Textf(lang, "MEMBER_KICKED", name), selfdestruct.DefaultTTL)
	case transport.KindNotFound:
		c.sendSelfDestruct(chatID, c.texts.Textf(lang, "MEMBER_KICK_NOT_IN_CHAT", name), selfdestruct.DefaultTTL)
	case transport.KindNoPermission:
		// Permanent notice; admins must see this one.
		if _, serr := c.msgr.SendMessage(chatID, c.texts.Textf(lang, "MEMBER_KICK_NO_RIGHTS", name)); serr != nil {
			log.Warn().Err(serr).Str("chat", chatID).Msg("no-rights notice failed")
		}
	case transport.KindTargetIsAdmin:
		c.sendSelfDestruct(chatID, c.texts.Textf(lang, "MEMBER_KICK_IS_ADMIN", name), selfdestruct.DefaultTTL)
	default:
		c.sendSelfDestruct(chatID, c.texts.Textf(lang, "MEMBER_KICK_FAILED", name), selfdestruct.DefaultTTL)
	}
}

// isNumeric reports whether s is all digits, with no length cap: a very long
// number is still a plausible captcha attempt.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
