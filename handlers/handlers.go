// Package handlers wires gateway events and slash commands to the admission
// controller and the config store.
package handlers

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"gatekeeper/admission"
	"gatekeeper/bot"
	"gatekeeper/model"
	"gatekeeper/selfdestruct"
)

// recentAddWindow bounds how old a GuildCreate may be to still count as
// "the bot was just added" rather than a reconnect replay.
const recentAddWindow = time.Minute

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers(b)
	addHandlers(b)
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", s.State.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")
	})

	b.Session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if time.Since(g.JoinedAt) > recentAddWindow {
			return
		}
		info, err := b.Messenger.ChatInfo(g.ID)
		if err != nil {
			log.Warn().Err(err).Str("guild", g.ID).Msg("chat info lookup failed on add")
		}
		b.Controller.HandleBotAdded(g.ID, info.Title, info.Link, string(g.PreferredLocale))
	})

	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		onMemberJoin(b, m)
	})

	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		onMessage(b, m)
	})

	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
				h(s, i)
			}
		case discordgo.InteractionMessageComponent:
			onComponent(b, s, i)
		}
	})
}

func onMemberJoin(b *bot.Bot, m *discordgo.GuildMemberAdd) {
	info, err := b.Messenger.ChatInfo(m.GuildID)
	if err != nil {
		log.Warn().Err(err).Str("guild", m.GuildID).Msg("chat info lookup failed on join")
	}
	b.Controller.HandleJoin(admission.JoinEvent{
		ChatID:      m.GuildID,
		ChatTitle:   info.Title,
		ChatLink:    info.Link,
		Broadcast:   info.Broadcast,
		MemberID:    m.User.ID,
		MemberName:  m.User.Username,
		MemberIsBot: m.User.Bot,
	})
}

func onMessage(b *bot.Bot, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.Session.State.User.ID || m.Author.Bot || m.GuildID == "" {
		return
	}

	// The join system message is the "X joined the server" notice; tie it
	// to the member's pending entry so it gets cleaned up with the rest.
	if m.Type == discordgo.MessageTypeGuildMemberJoin {
		b.Controller.AttachJoinNotice(m.GuildID, m.Author.ID, m.ID)
		return
	}

	if handleTriggerNote(b, m) {
		return
	}

	var urls []string
	for _, e := range m.Embeds {
		if e.URL != "" {
			urls = append(urls, e.URL)
		}
	}
	b.Controller.HandleMessage(admission.MessageEvent{
		ChatID:     m.GuildID,
		MemberID:   m.Author.ID,
		MemberName: m.Author.Username,
		MessageID:  m.ID,
		Text:       m.Content,
		EntityURLs: urls,
		IsText:     m.Content != "" && len(m.Attachments) == 0 && len(m.StickerItems) == 0,
	})
}

// handleTriggerNote answers messages of the form "<trigger_char><word>" with
// the note bound to that word, if any.
func handleTriggerNote(b *bot.Bot, m *discordgo.MessageCreate) bool {
	char, _ := b.Store.Get(m.GuildID, model.KeyTriggerChar)
	if char == "" || !strings.HasPrefix(m.Content, char) {
		return false
	}
	word := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(m.Content, char)))
	if word == "" || strings.ContainsRune(word, ' ') {
		return false
	}
	notes := b.Store.GetStringMap(m.GuildID, model.KeyTriggerList)
	text, ok := notes[word]
	if !ok {
		return false
	}
	msgID, err := b.Messenger.SendMessage(m.GuildID, text)
	if err != nil {
		log.Warn().Err(err).Str("guild", m.GuildID).Msg("trigger note send failed")
		return true
	}
	b.Destruct.ScheduleIn(m.GuildID, msgID, b.Messenger.SelfID(), selfdestruct.DefaultTTL)
	return true
}

// onComponent routes the "get another captcha" button. Only the challenged
// member may press their own button.
func onComponent(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	const prefix = "newcaptcha:"
	if !strings.HasPrefix(customID, prefix) {
		return
	}
	memberID := strings.TrimPrefix(customID, prefix)
	presser := interactionUserID(i)
	if presser != memberID {
		respondEphemeral(s, i, b.Texts.Text(chatLang(b, i.GuildID), "CMD_NOT_ALLOW"))
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("component ack failed")
	}
	b.Controller.HandleNewCaptchaButton(i.GuildID, memberID, i.Message.ID)
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func chatLang(b *bot.Bot, guildID string) string {
	lang, _ := b.Store.Get(guildID, model.KeyLanguage)
	return lang
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("interaction response failed")
	}
}
