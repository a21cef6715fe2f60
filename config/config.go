package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	LogLevel string
	LogFile  string

	// CommandDuration is the minigame's rotating deadline.
	CommandDuration time.Duration

	// MoveBroadcastMin coalesces playerMoved fan-out per participant;
	// zero disables throttling.
	MoveBroadcastMin time.Duration
}

// Load reads configuration from the environment, after loading .env when one
// is present. Invalid values fall back to defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            ":8080",
		LogLevel:        "info",
		CommandDuration: 5 * time.Second,
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.CommandDuration = millis("COMMAND_DURATION_MS", cfg.CommandDuration)
	cfg.MoveBroadcastMin = millis("MOVE_BROADCAST_MIN_MS", 0)
	return cfg
}

func millis(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
