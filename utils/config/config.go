package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

type Config struct {
	Port             string
	BackendURL       string
	BackendTimeout   time.Duration
	MaxSuggestions   int
	MaxSessions      int
	RateLimit        float64
	WSEventsPerSec   float64
	WSEventBurst     int
	TelegramBotToken string
}

// Load reads .env when present and then the process environment, which
// wins over the file.
func Load() Config {
	_ = gotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) Config {
	return Config{
		Port:             envString(getenv, "PORT", "8080"),
		BackendURL:       envString(getenv, "BACKEND_URL", "http://localhost:5020"),
		BackendTimeout:   envDuration(getenv, "BACKEND_TIMEOUT", 0),
		MaxSuggestions:   envInt(getenv, "MAX_SUGGESTIONS", 5),
		MaxSessions:      envInt(getenv, "MAX_SESSIONS", 100),
		RateLimit:        envFloat(getenv, "RATE_LIMIT", 20),
		WSEventsPerSec:   envFloat(getenv, "WS_EVENTS_PER_SECOND", 5),
		WSEventBurst:     envInt(getenv, "WS_EVENT_BURST", 10),
		TelegramBotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN")),
	}
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(getenv func(string) string, key string, def float64) float64 {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// envDuration accepts Go durations ("30s") or plain seconds.
func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
