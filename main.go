package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gatekeeper/bot"
	"gatekeeper/config"
	"gatekeeper/handlers"
	"gatekeeper/locale"
	"gatekeeper/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), os.ModePerm); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open config store")
	}

	texts, err := locale.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load language tables")
	}

	b, err := bot.New(cfg, st, texts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	handlers.Register(b)

	if err := b.Run(); err != nil {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
	b.Close()
}
