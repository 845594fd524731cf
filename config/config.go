package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfig marks a fatal configuration problem detected at startup.
var ErrConfig = errors.New("configuration error")

// Fetch sources.
const (
	SourceYahoo = "yahoo"
	SourceAngel = "angel"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Telegram (required)
	BotToken string
	ChatID   string

	// Instrument
	Instrument string // display name, e.g. "NIFTY"
	Symbol     string // Yahoo symbol, e.g. "^NSEI"

	// Series source
	FetchSource      string
	AngelAPIKey      string
	AngelClientCode  string
	AngelPassword    string
	AngelTOTPSecret  string
	AngelSymbolToken string

	// Cadence
	PollInterval time.Duration // inside market hours
	IdleInterval time.Duration // outside market hours
	SkipHolidays bool

	// Infrastructure (all optional)
	MetricsAddr   string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	SQLitePath    string
	WebhookURL    string
	LogLevel      string
}

// LoadDotEnv loads variables from the given .env files (default ".env") if
// present. Already-set environment variables win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("[config] no .env file loaded", slog.Any("error", err))
	}
}

// Load reads configuration from environment variables with sensible defaults.
// Missing required keys fail with ErrConfig naming every missing key.
func Load() (*Config, error) {
	var missing []string
	var invalid []string

	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		v := getEnv(key, "")
		if v == "" {
			return fallback
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, key+"="+v)
			return fallback
		}
		return d
	}

	cfg := &Config{
		BotToken: required("BOT_TOKEN"),
		ChatID:   required("CHAT_ID"),

		Instrument: getEnv("INSTRUMENT", "NIFTY"),
		Symbol:     getEnv("SYMBOL", "^NSEI"),

		FetchSource:      strings.ToLower(getEnv("FETCH_SOURCE", SourceYahoo)),
		AngelSymbolToken: getEnv("ANGEL_SYMBOL_TOKEN", "99926000"), // NIFTY 50 on NSE

		PollInterval: duration("POLL_INTERVAL", 5*time.Minute),
		IdleInterval: duration("IDLE_INTERVAL", 10*time.Minute),
		SkipHolidays: getBool("SKIP_HOLIDAYS"),

		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisChannel:  getEnv("REDIS_CHANNEL", "signals:nifty"),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	switch cfg.FetchSource {
	case SourceYahoo:
	case SourceAngel:
		cfg.AngelAPIKey = required("ANGEL_API_KEY")
		cfg.AngelClientCode = required("ANGEL_CLIENT_CODE")
		cfg.AngelPassword = required("ANGEL_PASSWORD")
		cfg.AngelTOTPSecret = required("ANGEL_TOTP_SECRET")
	default:
		invalid = append(invalid, "FETCH_SOURCE="+cfg.FetchSource)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: required env vars not set: %s", ErrConfig, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: invalid values: %s", ErrConfig, strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getBool(key string) bool {
	b, err := strconv.ParseBool(getEnv(key, "false"))
	return err == nil && b
}
