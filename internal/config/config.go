package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"agora/internal/chat"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

type Config struct {
	DBFile    string
	AdminAddr string
	APIAddr   string
	LogLevel  slog.Level

	TokenExpiry time.Duration

	EditWindow             time.Duration
	MinSendInterval        time.Duration
	DailyMessageCap        int
	RetentionPeriod        time.Duration
	RetentionCron          string
	RateLimitCleanupWindow time.Duration
	SweepEvery             int
	MaxPinned              int
	MaxReactions           int

	// APIRPS and APIBurst bound HTTP requests per token.
	APIRPS   float64
	APIBurst int
}

// Load reads the configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded .env file")
	}

	p := &parser{}
	cfg := &Config{
		DBFile:    getEnv("AGORA_DB", "agora.db"),
		AdminAddr: getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:   getEnv("API_ADDR", ":8080"),
		LogLevel:  p.level("LOG_LEVEL", slog.LevelInfo),

		TokenExpiry: p.duration("TOKEN_EXPIRY", 30*24*time.Hour),

		EditWindow:             p.duration("EDIT_WINDOW", 15*time.Minute),
		MinSendInterval:        p.duration("MIN_SEND_INTERVAL", time.Second),
		DailyMessageCap:        p.int("DAILY_MESSAGE_CAP", 1000),
		RetentionPeriod:        p.duration("RETENTION_PERIOD", 0),
		RetentionCron:          getEnv("RETENTION_CRON", "*/15 * * * *"),
		RateLimitCleanupWindow: p.duration("RATE_LIMIT_CLEANUP_WINDOW", 48*time.Hour),
		SweepEvery:             p.int("SWEEP_EVERY", 100),
		MaxPinned:              p.int("MAX_PINNED", 5),
		MaxReactions:           p.int("MAX_REACTIONS", 50),

		APIRPS:   p.float("API_RPS", 20),
		APIBurst: p.int("API_BURST", 40),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DBFile == "" {
		errs = append(errs, fmt.Errorf("AGORA_DB must not be empty"))
	}
	if c.TokenExpiry <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_EXPIRY must be greater than 0"))
	}
	if c.EditWindow < 0 || c.MinSendInterval < 0 || c.RetentionPeriod < 0 {
		errs = append(errs, fmt.Errorf("EDIT_WINDOW, MIN_SEND_INTERVAL and RETENTION_PERIOD must not be negative"))
	}
	if c.RateLimitCleanupWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_CLEANUP_WINDOW must be greater than 0"))
	}
	if c.DailyMessageCap < 0 || c.SweepEvery < 0 {
		errs = append(errs, fmt.Errorf("DAILY_MESSAGE_CAP and SWEEP_EVERY must not be negative"))
	}
	if c.MaxPinned <= 0 || c.MaxReactions <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PINNED and MAX_REACTIONS must be greater than 0"))
	}
	if c.APIRPS <= 0 || c.APIBurst <= 0 {
		errs = append(errs, fmt.Errorf("API_RPS and API_BURST must be greater than 0"))
	}
	if c.RetentionCron != "" && !gronx.New().IsValid(c.RetentionCron) {
		errs = append(errs, fmt.Errorf("RETENTION_CRON %q is not a valid cron expression", c.RetentionCron))
	}
	return errors.Join(errs...)
}

// ChatConfig returns the store configuration derived from the environment.
func (c *Config) ChatConfig() chat.Config {
	cc := chat.DefaultConfig()
	cc.EditWindow = c.EditWindow
	cc.MinSendInterval = c.MinSendInterval
	cc.DailyMessageCap = c.DailyMessageCap
	cc.RetentionPeriod = c.RetentionPeriod
	cc.RateLimitCleanupWindow = c.RateLimitCleanupWindow
	cc.SweepEvery = c.SweepEvery
	cc.MaxPinned = c.MaxPinned
	cc.MaxReactions = c.MaxReactions
	return cc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) int(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) level(key string, fallback slog.Level) slog.Level {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return lvl
}
