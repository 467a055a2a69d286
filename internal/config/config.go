// Package config loads runtime settings from PHARMA_* environment variables
// (optionally from a .env file) with defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "PHARMA"

type Config struct {
	DBPath             string        `mapstructure:"DB_PATH"`
	Timezone           string        `mapstructure:"TIMEZONE"`
	StockThresholdDays int           `mapstructure:"STOCK_THRESHOLD_DAYS"`
	OperationKeyTTL    time.Duration `mapstructure:"OPERATION_KEY_TTL"`
	StockAlertCooldown time.Duration `mapstructure:"STOCK_ALERT_COOLDOWN"`
	NotificationLevel  string        `mapstructure:"NOTIFICATION_LEVEL"`
	SnoozeMinutes      int           `mapstructure:"SNOOZE_MINUTES"`
	MaxPending         int           `mapstructure:"MAX_PENDING"`
	NotifyHorizon      time.Duration `mapstructure:"NOTIFY_HORIZON"`
	IntakeTolerance    time.Duration `mapstructure:"INTAKE_TOLERANCE"`
	LiveLead           time.Duration `mapstructure:"LIVE_LEAD"`
	LiveGrace          time.Duration `mapstructure:"LIVE_GRACE"`
	UpcomingDays       int           `mapstructure:"UPCOMING_DAYS"`
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	RedisPrefix        string        `mapstructure:"REDIS_PREFIX"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFormat          string        `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"DB_PATH":              "pharmaapp.db",
	"TIMEZONE":             "Local",
	"STOCK_THRESHOLD_DAYS": 7,
	"OPERATION_KEY_TTL":    "60s",
	"STOCK_ALERT_COOLDOWN": "48h",
	"NOTIFICATION_LEVEL":   "normal",
	"SNOOZE_MINUTES":       10,
	"MAX_PENDING":          60,
	"NOTIFY_HORIZON":       "24h",
	"INTAKE_TOLERANCE":     "1h",
	"LIVE_LEAD":            "10m",
	"LIVE_GRACE":           "60m",
	"UPCOMING_DAYS":        7,
	"HTTP_ADDR":            ":8080",
	"REDIS_URL":            "",
	"REDIS_PREFIX":         "pharmaapp:",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
}

// New returns a viper instance with defaults and env bindings applied.
// Callers may bind flags to it before calling LoadFrom.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind explicitly so Unmarshal picks them up
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(New())
}

// LoadFrom unmarshals and validates v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.NotificationLevel {
	case "normal", "alarm":
	default:
		errs = append(errs, fmt.Errorf("NOTIFICATION_LEVEL must be normal or alarm, got %q", c.NotificationLevel))
	}
	positive := map[string]int{
		"STOCK_THRESHOLD_DAYS": c.StockThresholdDays,
		"SNOOZE_MINUTES":       c.SnoozeMinutes,
		"MAX_PENDING":          c.MaxPending,
		"UPCOMING_DAYS":        c.UpcomingDays,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, positive[key]))
		}
	}
	durations := map[string]time.Duration{
		"OPERATION_KEY_TTL":    c.OperationKeyTTL,
		"STOCK_ALERT_COOLDOWN": c.StockAlertCooldown,
		"NOTIFY_HORIZON":       c.NotifyHorizon,
		"INTAKE_TOLERANCE":     c.IntakeTolerance,
		"LIVE_LEAD":            c.LiveLead,
		"LIVE_GRACE":           c.LiveGrace,
	}
	for _, key := range sortedKeys(durations) {
		if durations[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, durations[key]))
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Location resolves TIMEZONE. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
