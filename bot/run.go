package bot

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Run opens the gateway connection, registers the command set, starts the
// sweep scheduler and blocks until SIGINT or SIGTERM.
func (b *Bot) Run() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open gateway connection: %w", err)
	}

	b.RegisterCommands()
	b.scheduler.Start()

	log.Info().Str("user", b.Session.State.User.Username).Msg("bot is running, press CTRL-C to exit")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	return nil
}
