package admission

import (
	"time"

	"github.com/rs/zerolog/log"

	"gatekeeper/model"
	"gatekeeper/selfdestruct"
	"gatekeeper/transport"
)

// SweepTimeouts sanctions every pending member whose deadline has passed.
// Below maxJoinRetries the member is kicked but the entry stays alive for a
// while so a re-join resumes the same retry count; at the limit the member is
// banned and the entry removed. Iteration happens over a snapshot; mutations
// go through the registry.
func (c *Controller) SweepTimeouts(now time.Time) {
	for _, entry := range c.reg.Snapshot() {
		timeout := c.captchaTimeout(entry.ChatID)
		deadline := entry.Deadline(timeout)
		if now.Before(deadline) {
			continue
		}
		if entry.Kicked {
			// Already sanctioned; drop the entry once the re-join
			// window has passed.
			if now.After(deadline.Add(kickedPurgeGrace)) {
				c.reg.Resolve(entry.ChatID, entry.MemberID)
				log.Debug().Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("kicked entry purged")
			}
			continue
		}
		if entry.Retries >= maxJoinRetries {
			c.banTimedOut(entry)
		} else {
			c.kickTimedOut(entry)
		}
	}
}

func (c *Controller) kickTimedOut(entry model.PendingMember) {
	lang := c.lang(entry.ChatID)
	err := c.msgr.KickAndUnban(entry.ChatID, entry.MemberID, "captcha not solved in time")
	kind := transport.KindOf(err)
	c.notifyKickOutcome(entry.ChatID, lang, entry.Name, err)
	c.deleteArtifacts(entry.ChatID, entry.Artifacts, false)
	c.sched.ScheduleIn(entry.ChatID, entry.Artifacts.JoinNoticeID, entry.MemberID, selfdestruct.DefaultTTL)

	switch kind {
	case transport.KindNoPermission, transport.KindTimeout:
		// Not sanctioned yet. Push the deadline out a full window so the
		// retry does not fire on every sweep tick.
		c.reg.Update(entry.ChatID, entry.MemberID, func(p *model.PendingMember) {
			p.JoinedAt = c.now()
			p.Artifacts = model.JoinArtifacts{}
		})
		log.Warn().Err(err).Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("kick did not land, retrying after next window")
	case transport.KindNone:
		c.reg.Update(entry.ChatID, entry.MemberID, func(p *model.PendingMember) {
			p.Kicked = true
			p.Retries++
			p.Artifacts = model.JoinArtifacts{}
		})
		log.Info().Str("chat", entry.ChatID).Str("member", entry.MemberID).Int("retries", entry.Retries+1).Msg("member kicked on timeout")
	case transport.KindTargetIsAdmin:
		// An admin outranks the bot; retrying will never succeed.
		c.reg.Update(entry.ChatID, entry.MemberID, func(p *model.PendingMember) {
			p.Kicked = true
			p.Artifacts = model.JoinArtifacts{}
		})
		log.Info().Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("kick target is an administrator")
	default:
		// Not in chat or unexpected failure: the kick cycle still
		// counts, there is nobody left to kick.
		c.reg.Update(entry.ChatID, entry.MemberID, func(p *model.PendingMember) {
			p.Kicked = true
			p.Artifacts = model.JoinArtifacts{}
		})
		log.Info().Err(err).Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("member gone before kick")
	}
}

func (c *Controller) banTimedOut(entry model.PendingMember) {
	lang := c.lang(entry.ChatID)
	err := c.msgr.BanPermanently(entry.ChatID, entry.MemberID, "captcha retry limit reached")
	c.deleteArtifacts(entry.ChatID, entry.Artifacts, false)
	c.sched.ScheduleIn(entry.ChatID, entry.Artifacts.JoinNoticeID, entry.MemberID, selfdestruct.DefaultTTL)

	switch transport.KindOf(err) {
	case transport.KindNone:
		// Ban outcomes stay visible; admins should know the limit fired.
		c.sendPermanent(entry.ChatID, c.texts.Textf(lang, "MEMBER_BANNED", entry.Name, maxJoinRetries))
		c.reg.Resolve(entry.ChatID, entry.MemberID)
		log.Info().Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("member banned after retry limit")
	case transport.KindNotFound:
		c.sendPermanent(entry.ChatID, c.texts.Textf(lang, "MEMBER_BAN_NOT_IN_CHAT", entry.Name))
		c.reg.Resolve(entry.ChatID, entry.MemberID)
	case transport.KindTargetIsAdmin:
		// An admin target will never be bannable; stop trying.
		c.sendPermanent(entry.ChatID, c.texts.Textf(lang, "MEMBER_BAN_IS_ADMIN", entry.Name))
		c.reg.Resolve(entry.ChatID, entry.MemberID)
	case transport.KindNoPermission:
		c.sendPermanent(entry.ChatID, c.texts.Textf(lang, "MEMBER_BAN_NO_RIGHTS", entry.Name))
		c.reg.Update(entry.ChatID, entry.MemberID, func(p *model.PendingMember) {
			p.JoinedAt = c.now()
			p.Artifacts = model.JoinArtifacts{}
		})
		log.Warn().Err(err).Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("ban lacks permission, retrying after next window")
	default:
		c.sendPermanent(entry.ChatID, c.texts.Textf(lang, "MEMBER_BAN_FAILED", entry.Name))
		c.reg.Resolve(entry.ChatID, entry.MemberID)
		log.Warn().Err(err).Str("chat", entry.ChatID).Str("member", entry.MemberID).Msg("ban failed")
	}
}

func (c *Controller) sendPermanent(chatID, text string) {
	if _, err := c.msgr.SendMessage(chatID, text); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("notice failed")
	}
}
