package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // DIGEST_TIMEZONE must resolve on hosts without zoneinfo.

	"feedbrief/internal/summarizer"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Token         string   `env:"TOKEN"`
	AllowedUsers  []int64  `env:"ALLOWED_USERS"`
	DigestChatIDs []int64  `env:"DIGEST_CHAT_IDS"`
	DBPath        string   `env:"DB_PATH"         envDefault:"db.sqlite"`
	Feeds         []string `env:"FEEDS"`

	Provider          string        `env:"SUMMARY_PROVIDER"            envDefault:"openai"`
	APIKey            string        `env:"SUMMARY_API_KEY"`
	Endpoint          string        `env:"SUMMARY_ENDPOINT"`
	Model             string        `env:"SUMMARY_MODEL"`
	RequestTimeout    time.Duration `env:"SUMMARY_REQUEST_TIMEOUT"     envDefault:"30s"`
	MaxAttempts       int           `env:"SUMMARY_MAX_ATTEMPTS"        envDefault:"3"`
	MaxParallel       int           `env:"SUMMARY_MAX_PARALLEL"        envDefault:"4"`
	RequestsPerMinute int           `env:"SUMMARY_REQUESTS_PER_MINUTE" envDefault:"0"`

	Schedule    string        `env:"DIGEST_SCHEDULE"     envDefault:"0 * * * *"`
	Timezone    string        `env:"DIGEST_TIMEZONE"     envDefault:"UTC"`
	PassTimeout time.Duration `env:"DIGEST_PASS_TIMEOUT" envDefault:"15m"`
	BatchSize   int           `env:"DIGEST_BATCH_SIZE"   envDefault:"50"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	location *time.Location
}

// Load reads the environment, applies provider defaults and validates the
// result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Token = strings.TrimSpace(cfg.Token)

	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = summarizer.DefaultEndpoint(cfg.Provider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = summarizer.DefaultModel(cfg.Provider)
	}

	feeds := cfg.Feeds[:0]
	for _, f := range cfg.Feeds {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	cfg.Feeds = feeds

	if err = cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if !summarizer.IsSupported(c.Provider) {
		errs = append(errs, fmt.Errorf("SUMMARY_PROVIDER %q is not one of: %s",
			c.Provider, strings.Join(summarizer.SupportedProviders(), ", ")))
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("DIGEST_SCHEDULE %q: %w", c.Schedule, err))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("DIGEST_TIMEZONE %q: %w", c.Timezone, err))
	}
	c.location = loc

	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("SUMMARY_MAX_ATTEMPTS must be positive"))
	}
	if c.MaxParallel <= 0 {
		errs = append(errs, errors.New("SUMMARY_MAX_PARALLEL must be positive"))
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("SUMMARY_REQUESTS_PER_MINUTE must not be negative"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("DIGEST_BATCH_SIZE must be positive"))
	}
	if c.RequestTimeout <= 0 || c.PassTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}

	return errors.Join(errs...)
}

// Location is Timezone resolved by Load.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}

	return c.location
}

// SummarizerEnabled reports whether a summary backend can be called at all.
func (c *Config) SummarizerEnabled() bool {
	return c.APIKey != ""
}

// ProviderConfig returns the immutable gateway configuration.
func (c *Config) ProviderConfig() summarizer.ProviderConfig {
	return summarizer.ProviderConfig{
		APIKey:   c.APIKey,
		Endpoint: c.Endpoint,
		Model:    c.Model,
	}
}
