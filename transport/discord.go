package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 20 * time.Second

// Discord adapts a discordgo session to the Messenger contract. A chat id is
// a guild id; announcements and challenges go to the guild's gate channel
// (the system channel, or the first text channel).
type Discord struct {
	s *discordgo.Session

	mu       sync.Mutex
	channels map[string]string // guild id -> gate channel id
}

// NewDiscord wraps an open session. The session's HTTP client is given a
// bounded timeout so no transport call can block indefinitely.
func NewDiscord(s *discordgo.Session) *Discord {
	s.Client.Timeout = requestTimeout
	return &Discord{s: s, channels: make(map[string]string)}
}

func (d *Discord) SelfID() string {
	if d.s.State != nil && d.s.State.User != nil {
		return d.s.State.User.ID
	}
	return ""
}

// channelFor resolves the guild's gate channel, caching the answer.
func (d *Discord) channelFor(guildID string) (string, error) {
	d.mu.Lock()
	if ch, ok := d.channels[guildID]; ok {
		d.mu.Unlock()
		return ch, nil
	}
	d.mu.Unlock()

	guild, err := d.s.State.Guild(guildID)
	if err != nil {
		if guild, err = d.s.Guild(guildID); err != nil {
			return "", classify("channelFor", err)
		}
	}
	ch := guild.SystemChannelID
	if ch == "" {
		channels := guild.Channels
		if len(channels) == 0 {
			if channels, err = d.s.GuildChannels(guildID); err != nil {
				return "", classify("channelFor", err)
			}
		}
		for _, c := range channels {
			if c.Type == discordgo.ChannelTypeGuildText {
				ch = c.ID
				break
			}
		}
	}
	if ch == "" {
		return "", &Error{Op: "channelFor", Kind: KindNotFound, Err: errors.New("guild has no text channel")}
	}
	d.mu.Lock()
	d.channels[guildID] = ch
	d.mu.Unlock()
	return ch, nil
}

func buttonComponents(button *Button) []discordgo.MessageComponent {
	if button == nil {
		return nil
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    button.Label,
					Style:    discordgo.PrimaryButton,
					CustomID: button.ID,
				},
			},
		},
	}
}

func (d *Discord) SendMessage(chatID, text string) (string, error) {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return "", err
	}
	msg, err := d.s.ChannelMessageSend(ch, text)
	if err != nil {
		return "", classify("SendMessage", err)
	}
	return msg.ID, nil
}

func (d *Discord) SendPhoto(chatID, caption string, image []byte, button *Button) (string, error) {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return "", err
	}
	msg, err := d.s.ChannelMessageSendComplex(ch, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{{
			Name:        "captcha.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
		Components: buttonComponents(button),
	})
	if err != nil {
		return "", classify("SendPhoto", err)
	}
	return msg.ID, nil
}

func (d *Discord) EditPhoto(chatID, messageID, caption string, image []byte, button *Button) error {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return err
	}
	components := buttonComponents(button)
	// Replacing the attachment set drops the previous captcha image.
	attachments := []*discordgo.MessageAttachment{}
	_, err = d.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel: ch,
		ID:      messageID,
		Content: &caption,
		Files: []*discordgo.File{{
			Name:        "captcha.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
		Attachments: &attachments,
		Components:  &components,
	})
	return classify("EditPhoto", err)
}

func (d *Discord) DeleteMessage(chatID, messageID string) error {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return err
	}
	return classify("DeleteMessage", d.s.ChannelMessageDelete(ch, messageID))
}

func (d *Discord) RestrictToText(chatID, memberID string) error {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return err
	}
	deny := int64(discordgo.PermissionAttachFiles | discordgo.PermissionEmbedLinks | discordgo.PermissionAddReactions)
	allow := int64(discordgo.PermissionSendMessages)
	return classify("RestrictToText",
		d.s.ChannelPermissionSet(ch, memberID, discordgo.PermissionOverwriteTypeMember, allow, deny))
}

func (d *Discord) KickAndUnban(chatID, memberID, reason string) error {
	err := d.s.GuildMemberDeleteWithReason(chatID, memberID, reason)
	return d.refineSanctionErr("KickAndUnban", chatID, memberID, err)
}

func (d *Discord) BanPermanently(chatID, memberID, reason string) error {
	err := d.s.GuildBanCreateWithReason(chatID, memberID, reason, 0)
	return d.refineSanctionErr("BanPermanently", chatID, memberID, err)
}

// refineSanctionErr upgrades a permission failure against an administrator to
// KindTargetIsAdmin, since the REST API reports both the same way.
func (d *Discord) refineSanctionErr(op, chatID, memberID string, err error) error {
	classified := classify(op, err)
	if KindOf(classified) != KindNoPermission {
		return classified
	}
	if isAdmin, adminErr := d.IsAdmin(chatID, memberID); adminErr == nil && isAdmin {
		return &Error{Op: op, Kind: KindTargetIsAdmin, Err: err}
	}
	return classified
}

func (d *Discord) IsAdmin(chatID, memberID string) (bool, error) {
	guild, err := d.s.State.Guild(chatID)
	if err != nil {
		if guild, err = d.s.Guild(chatID); err != nil {
			return false, classify("IsAdmin", err)
		}
	}
	if guild.OwnerID == memberID {
		return true, nil
	}
	member, err := d.s.GuildMember(chatID, memberID)
	if err != nil {
		return false, classify("IsAdmin", err)
	}
	roles := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		roles[r.ID] = r
	}
	for _, id := range member.Roles {
		if r, ok := roles[id]; ok && r.Permissions&discordgo.PermissionAdministrator != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (d *Discord) ChatInfo(chatID string) (ChatInfo, error) {
	guild, err := d.s.State.Guild(chatID)
	if err != nil {
		if guild, err = d.s.Guild(chatID); err != nil {
			return ChatInfo{}, classify("ChatInfo", err)
		}
	}
	info := ChatInfo{ID: chatID, Title: guild.Name}
	if guild.VanityURLCode != "" {
		info.Link = "https://discord.gg/" + guild.VanityURLCode
	}
	if _, err := d.channelFor(chatID); err != nil {
		// Nowhere to run a challenge.
		info.Broadcast = true
	}
	return info, nil
}

func (d *Discord) CreateInviteLink(chatID string) (string, error) {
	ch, err := d.channelFor(chatID)
	if err != nil {
		return "", err
	}
	invite, err := d.s.ChannelInviteCreate(ch, discordgo.Invite{
		MaxUses:   1,
		MaxAge:    int((24 * time.Hour).Seconds()),
		Temporary: false,
		Unique:    true,
	})
	if err != nil {
		return "", classify("CreateInviteLink", err)
	}
	return "https://discord.gg/" + invite.Code, nil
}

func (d *Discord) LeaveChat(chatID string) error {
	err := classify("LeaveChat", d.s.GuildLeave(chatID))
	if err == nil {
		log.Info().Str("chat", chatID).Msg("left chat")
	}
	return err
}

// classify maps a discordgo error to a *Error with a structured kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOther
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownMessage,
			discordgo.ErrCodeUnknownUser:
			kind = KindNotFound
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			kind = KindNoPermission
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		kind = KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf("discord: %w", err)}
}
