package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"gatekeeper/admission"
	"gatekeeper/captcha"
	"gatekeeper/commands"
	"gatekeeper/config"
	"gatekeeper/locale"
	"gatekeeper/selfdestruct"
	"gatekeeper/store"
	"gatekeeper/transport"
)

type Bot struct {
	Session            *discordgo.Session
	Store              *store.Store
	Texts              *locale.Table
	Messenger          transport.Messenger
	Controller         *admission.Controller
	Destruct           *selfdestruct.Scheduler
	RegisteredCommands []*discordgo.ApplicationCommand
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	cfg       *config.Config
	scheduler *Scheduler
}

func New(cfg *config.Config, st *store.Store, texts *locale.Table) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	dg.StateEnabled = true

	msgr := transport.NewDiscord(dg)
	destruct := selfdestruct.New(msgr, st, texts)
	ctrl := admission.NewController(msgr, captcha.NewImageGenerator(), st, texts, destruct)

	b := &Bot{
		Session:         dg,
		Store:           st,
		Texts:           texts,
		Messenger:       msgr,
		Controller:      ctrl,
		Destruct:        destruct,
		CommandHandlers: make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)),
		cfg:             cfg,
	}
	b.scheduler = NewScheduler(b, cfg.SweepInterval)
	return b, nil
}

// RegisterCommands bulk-overwrites the global slash command set.
func (b *Bot) RegisterCommands() {
	cmds := commands.Generate()
	registered, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, "", cmds)
	if err != nil {
		log.Error().Err(err).Msg("cannot register commands")
		return
	}
	b.RegisteredCommands = registered
	log.Info().Int("count", len(registered)).Msg("commands registered")
}

func (b *Bot) Close() {
	log.Info().Msg("shutting down")
	b.scheduler.Stop()
	if err := b.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("config store close failed")
	}
	if err := b.Session.Close(); err != nil {
		log.Warn().Err(err).Msg("session close failed")
	}
}
