package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"ksp-deals/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ErrMissingToken is returned by RequireTelegram when no bot token is set.
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Config holds the application settings.
type Config struct {
	TelegramBotToken    string
	TelegramChannelID   string
	TelegramAdminChatID int64 // 0 allows every chat

	DatabasePath string

	CheckIntervalMinutes int
	CheckInterval        time.Duration

	MinDiscountPercent decimal.Decimal
	MaxPostsPerDay     int
	PostSpacing        time.Duration
	DeliveryTimeout    time.Duration
	AutoPost           bool

	Timezone string
	Location *time.Location

	AffiliateID   string
	KSPBaseURL    string
	PublicBaseURL string

	HTTPAddr string
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		TelegramChannelID:    "@KSPmivtzei",
		DatabasePath:         "./deals.db",
		CheckIntervalMinutes: 360,
		MinDiscountPercent:   decimal.NewFromInt(models.DefaultMinDiscountPercent),
		MaxPostsPerDay:       models.DefaultMaxPostsPerDay,
		PostSpacing:          2 * time.Second,
		DeliveryTimeout:      30 * time.Second,
		Timezone:             "Asia/Jerusalem",
		AffiliateID:          "14887",
		KSPBaseURL:           "https://ksp.co.il",
		HTTPAddr:             ":8080",
	}
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env not found, using process environment")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Invalid numbers keep their defaults.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg.TelegramBotToken = get("TELEGRAM_BOT_TOKEN")
	if v := get("TELEGRAM_CHANNEL_ID"); v != "" {
		cfg.TelegramChannelID = v
	}
	if v := get("TELEGRAM_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramAdminChatID = id
		} else {
			slog.Warn("invalid TELEGRAM_ADMIN_CHAT_ID, ignoring", "value", v)
		}
	}
	if v := get("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	positiveInt(get("CHECK_INTERVAL_MINUTES"), "CHECK_INTERVAL_MINUTES", &cfg.CheckIntervalMinutes)
	cfg.CheckInterval = time.Duration(cfg.CheckIntervalMinutes) * time.Minute

	if v := get("MIN_DISCOUNT_PERCENT"); v != "" {
		d, err := decimal.NewFromString(v)
		if err == nil && !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(100)) {
			cfg.MinDiscountPercent = d
		} else {
			slog.Warn("invalid MIN_DISCOUNT_PERCENT, using default", "value", v)
		}
	}
	if v := get("MAX_POSTS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxPostsPerDay = n
		} else {
			slog.Warn("invalid MAX_POSTS_PER_DAY, using default", "value", v)
		}
	}
	seconds(get("POST_SPACING_SECONDS"), "POST_SPACING_SECONDS", true, &cfg.PostSpacing)
	seconds(get("DELIVERY_TIMEOUT_SECONDS"), "DELIVERY_TIMEOUT_SECONDS", false, &cfg.DeliveryTimeout)

	if v := get("AUTO_POST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoPost = b
		}
	}

	if v := get("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if v := get("KSP_AFFILIATE_ID"); v != "" {
		cfg.AffiliateID = v
	}
	if v := get("KSP_BASE_URL"); v != "" {
		cfg.KSPBaseURL = strings.TrimRight(v, "/")
	}
	cfg.PublicBaseURL = strings.TrimRight(get("PUBLIC_BASE_URL"), "/")
	if v := get("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	return cfg, nil
}

// RequireTelegram reports whether the commands that talk to Telegram can run.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return ErrMissingToken
	}
	return nil
}

func positiveInt(v, key string, dst *int) {
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid "+key+", using default", "value", v)
		return
	}
	*dst = n
}

func seconds(v, key string, allowZero bool, dst *time.Duration) {
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		slog.Warn("invalid "+key+", using default", "value", v)
		return
	}
	*dst = time.Duration(n) * time.Second
}
