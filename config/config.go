// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	BotToken      string
	DBPath        string
	SweepInterval time.Duration
	LogLevel      string
}

// Load reads the configuration from a .env file, if present, and the
// environment. A missing or placeholder token is a hard error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env file not found, relying on environment variables")
	}

	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" || token == "SET_YOUR_TOKEN_HERE" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable not set")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/gatekeeper.db"
	}

	sweepSeconds := 10
	if raw := os.Getenv("SWEEP_INTERVAL_SECONDS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			log.Warn().Str("value", raw).Msg("invalid SWEEP_INTERVAL_SECONDS, using default of 10")
		} else {
			sweepSeconds = v
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		BotToken:      token,
		DBPath:        dbPath,
		SweepInterval: time.Duration(sweepSeconds) * time.Second,
		LogLevel:      logLevel,
	}, nil
}
