package handlers

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"gatekeeper/bot"
	"gatekeeper/model"
)

const botVersion = "1.0.0"

type cmdFunc = func(s *discordgo.Session, i *discordgo.InteractionCreate)

func commandHandlers(b *bot.Bot) map[string]cmdFunc {
	return map[string]cmdFunc{
		"enable":            adminCmd(b, handleEnable),
		"disable":           adminCmd(b, handleDisable),
		"time":              adminCmd(b, handleTime),
		"difficulty":        adminCmd(b, handleDifficulty),
		"captcha_mode":      adminCmd(b, handleCaptchaMode),
		"welcome_msg":       adminCmd(b, handleWelcomeMsg),
		"add_ignore":        adminCmd(b, handleAddIgnore),
		"remove_ignore":     adminCmd(b, handleRemoveIgnore),
		"ignore_list":       adminCmd(b, handleIgnoreList),
		"add_note":          adminCmd(b, handleAddNote),
		"delete_note":       adminCmd(b, handleDeleteNote),
		"notes":             adminCmd(b, handleNotes),
		"add_question":      adminCmd(b, handleAddQuestion),
		"delete_question":   adminCmd(b, handleDeleteQuestion),
		"questions":         adminCmd(b, handleQuestions),
		"restrict_non_text": adminCmd(b, handleRestrictNonText),
		"protection":        adminCmd(b, handleProtection),
		"language":          adminCmd(b, handleLanguage),
		"request_access": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			handleRequestAccess(b, s, i)
		},
		"version": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			respondEphemeral(s, i, b.Texts.Textf(chatLang(b, i.GuildID), "VERSION", botVersion))
		},
		"about": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			respondEphemeral(s, i, b.Texts.Text(chatLang(b, i.GuildID), "ABOUT"))
		},
		"status": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			handleStatus(b, s, i)
		},
	}
}

// adminCmd wraps a handler with the administrator gate. Refusals are ephemeral
// and localized to the chat.
func adminCmd(b *bot.Bot, h func(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate)) cmdFunc {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Member == nil || i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
			respondEphemeral(s, i, b.Texts.Text(chatLang(b, i.GuildID), "CMD_NOT_ALLOW"))
			return
		}
		h(b, s, i)
	}
}

func options(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range i.ApplicationCommandData().Options {
		out[opt.Name] = opt
	}
	return out
}

func handleEnable(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	if b.Store.GetBool(i.GuildID, model.KeyEnabled) {
		respondEphemeral(s, i, b.Texts.Text(lang, "ALREADY_ENABLE"))
		return
	}
	b.Store.SetBool(i.GuildID, model.KeyEnabled, true)
	respondEphemeral(s, i, b.Texts.Text(lang, "ENABLE"))
}

func handleDisable(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	if !b.Store.GetBool(i.GuildID, model.KeyEnabled) {
		respondEphemeral(s, i, b.Texts.Text(lang, "ALREADY_DISABLE"))
		return
	}
	b.Store.SetBool(i.GuildID, model.KeyEnabled, false)
	respondEphemeral(s, i, b.Texts.Text(lang, "DISABLE"))
}

func handleTime(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	minutes := int(options(i)["minutes"].IntValue())
	if minutes < model.MinCaptchaTimeMin || minutes > model.MaxCaptchaTimeMin {
		respondEphemeral(s, i, b.Texts.Text(lang, "TIME_OUT_OF_RANGE"))
		return
	}
	b.Store.SetInt(i.GuildID, model.KeyCaptchaTime, minutes)
	respondEphemeral(s, i, b.Texts.Textf(lang, "TIME_CHANGE", minutes))
}

func handleDifficulty(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	level := int(options(i)["level"].IntValue())
	if level < model.MinCaptchaDifficulty || level > model.MaxCaptchaDifficulty {
		respondEphemeral(s, i, b.Texts.Text(lang, "DIFFICULTY_OUT_OF_RANGE"))
		return
	}
	b.Store.SetInt(i.GuildID, model.KeyCaptchaDifficulty, level)
	respondEphemeral(s, i, b.Texts.Textf(lang, "DIFFICULTY_CHANGE", level))
}

func handleCaptchaMode(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	mode := options(i)["mode"].StringValue()
	if !model.ValidCaptchaMode(mode) {
		respondEphemeral(s, i, b.Texts.Text(lang, "CAPTCHA_MODE_INVALID"))
		return
	}
	b.Store.Set(i.GuildID, model.KeyCaptchaMode, mode)
	respondEphemeral(s, i, b.Texts.Textf(lang, "CAPTCHA_MODE_CHANGE", mode))
}

func handleWelcomeMsg(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	msg := options(i)["message"].StringValue()
	if len(msg) > model.MaxWelcomeMsgLength {
		msg = msg[:model.MaxWelcomeMsgLength]
	}
	b.Store.Set(i.GuildID, model.KeyWelcomeMsg, msg)
	if msg == model.WelcomeDisabled {
		respondEphemeral(s, i, b.Texts.Text(lang, "WELCOME_MSG_UNSET"))
		return
	}
	respondEphemeral(s, i, b.Texts.Text(lang, "WELCOME_MSG_SET"))
}

func handleAddIgnore(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	memberID := options(i)["member"].UserValue(nil).ID
	list := b.Store.GetStringSlice(i.GuildID, model.KeyIgnoreList)
	for _, id := range list {
		if id == memberID {
			respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_ADD_DUPLICATED"))
			return
		}
	}
	if len(list) >= model.MaxIgnoreListSize {
		respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_ADD_LIMIT"))
		return
	}
	b.Store.SetStringSlice(i.GuildID, model.KeyIgnoreList, append(list, memberID))
	respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_ADD_SUCCESS"))
}

func handleRemoveIgnore(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	memberID := options(i)["member"].UserValue(nil).ID
	list := b.Store.GetStringSlice(i.GuildID, model.KeyIgnoreList)
	kept := list[:0]
	for _, id := range list {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(list) {
		respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_REMOVE_NOT_IN_LIST"))
		return
	}
	b.Store.SetStringSlice(i.GuildID, model.KeyIgnoreList, kept)
	respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_REMOVE_SUCCESS"))
}

func handleIgnoreList(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	list := b.Store.GetStringSlice(i.GuildID, model.KeyIgnoreList)
	if len(list) == 0 {
		respondEphemeral(s, i, b.Texts.Text(lang, "IGNORE_LIST_EMPTY"))
		return
	}
	var sb strings.Builder
	for _, id := range list {
		fmt.Fprintf(&sb, "<@%s>\n", id)
	}
	respondEphemeral(s, i, sb.String())
}

func handleAddNote(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	opts := options(i)
	trigger := strings.ToLower(strings.TrimSpace(opts["trigger"].StringValue()))
	notes := b.Store.GetStringMap(i.GuildID, model.KeyTriggerList)
	notes[trigger] = opts["text"].StringValue()
	b.Store.SetStringMap(i.GuildID, model.KeyTriggerList, notes)
	respondEphemeral(s, i, b.Texts.Text(lang, "NOTE_ADD"))
}

func handleDeleteNote(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	trigger := strings.ToLower(strings.TrimSpace(options(i)["trigger"].StringValue()))
	notes := b.Store.GetStringMap(i.GuildID, model.KeyTriggerList)
	if _, ok := notes[trigger]; !ok {
		respondEphemeral(s, i, b.Texts.Text(lang, "NOTE_NOT_FOUND"))
		return
	}
	delete(notes, trigger)
	b.Store.SetStringMap(i.GuildID, model.KeyTriggerList, notes)
	respondEphemeral(s, i, b.Texts.Text(lang, "NOTE_DELETE"))
}

func handleNotes(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	char, _ := b.Store.Get(i.GuildID, model.KeyTriggerChar)
	notes := b.Store.GetStringMap(i.GuildID, model.KeyTriggerList)
	if len(notes) == 0 {
		respondEphemeral(s, i, b.Texts.Text(lang, "NOTE_LIST_EMPTY"))
		return
	}
	var sb strings.Builder
	sb.WriteString(b.Texts.Text(lang, "NOTE_LIST_HEADER") + ":\n")
	for trigger := range notes {
		fmt.Fprintf(&sb, "%s%s\n", char, trigger)
	}
	respondEphemeral(s, i, sb.String())
}

func handleAddQuestion(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	opts := options(i)
	prompt := strings.TrimSpace(opts["question"].StringValue())
	answer := strings.TrimSpace(opts["answer"].StringValue())
	var wrongs []string
	for _, w := range strings.Split(opts["wrong"].StringValue(), ";") {
		if w = strings.TrimSpace(w); w != "" {
			wrongs = append(wrongs, w)
		}
	}
	if prompt == "" || answer == "" || len(wrongs) == 0 {
		respondEphemeral(s, i, b.Texts.Text(lang, "QUESTION_BAD_ARGS"))
		return
	}
	bank := b.Store.GetQuestions(i.GuildID)
	bank[prompt] = model.QuizQuestion{Prompt: prompt, Answer: answer, Wrongs: wrongs}
	b.Store.SetQuestions(i.GuildID, bank)
	respondEphemeral(s, i, b.Texts.Text(lang, "QUESTION_ADD"))
}

func handleDeleteQuestion(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	prompt := strings.TrimSpace(options(i)["question"].StringValue())
	bank := b.Store.GetQuestions(i.GuildID)
	if _, ok := bank[prompt]; !ok {
		respondEphemeral(s, i, b.Texts.Text(lang, "QUESTION_NOT_FOUND"))
		return
	}
	delete(bank, prompt)
	b.Store.SetQuestions(i.GuildID, bank)
	respondEphemeral(s, i, b.Texts.Text(lang, "QUESTION_DELETE"))
}

func handleQuestions(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	bank := b.Store.GetQuestions(i.GuildID)
	if len(bank) == 0 {
		respondEphemeral(s, i, b.Texts.Text(lang, "QUESTION_LIST_EMPTY"))
		return
	}
	var sb strings.Builder
	sb.WriteString(b.Texts.Text(lang, "QUESTION_LIST_HEADER") + ":\n")
	for _, q := range bank {
		fmt.Fprintf(&sb, "- %s (%d wrong answers)\n", q.Prompt, len(q.Wrongs))
	}
	respondEphemeral(s, i, sb.String())
}

func handleRestrictNonText(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	enabled := options(i)["enabled"].BoolValue()
	b.Store.SetBool(i.GuildID, model.KeyRestrictNonText, enabled)
	key := "RESTRICT_NON_TEXT_DISABLED"
	if enabled {
		key = "RESTRICT_NON_TEXT_ENABLED"
	}
	respondEphemeral(s, i, b.Texts.Text(lang, key))
}

func handleProtection(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	enabled := options(i)["enabled"].BoolValue()
	b.Store.SetBool(i.GuildID, model.KeyProtected, enabled)
	if !enabled {
		// Free the authorization slot so a later re-enable starts clean.
		b.Store.Set(i.GuildID, model.KeyProtectionUser, "")
		b.Store.SetInt64(i.GuildID, model.KeyProtectionTime, 0)
		respondEphemeral(s, i, b.Texts.Text(lang, "PROTECTION_OFF"))
		return
	}
	respondEphemeral(s, i, b.Texts.Text(lang, "PROTECTION_ON"))
}

func handleLanguage(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := chatLang(b, i.GuildID)
	code := b.Texts.Normalize(options(i)["code"].StringValue())
	if !b.Texts.Has(code) {
		respondEphemeral(s, i, b.Texts.Textf(lang, "LANG_BAD_LANG", strings.Join(b.Texts.Languages(), ", ")))
		return
	}
	b.Store.Set(i.GuildID, model.KeyLanguage, code)
	respondEphemeral(s, i, b.Texts.Text(code, "LANG_CHANGE"))
}

// handleRequestAccess is open to everyone; the whole point is letting
// would-be members obtain the authorization link.
func handleRequestAccess(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.Store.GetBool(i.GuildID, model.KeyProtected) {
		respondEphemeral(s, i, b.Texts.Text(chatLang(b, i.GuildID), "PROTECTION_OFF"))
		return
	}
	respondEphemeral(s, i, b.Controller.RequestAccess(i.GuildID, interactionUserID(i)))
}
