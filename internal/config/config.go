// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	LogLevel    slog.Level

	DBDriver    string
	DBPath      string
	DatabaseURL string

	Workday  scheduler.Workday
	Location *time.Location

	// ClearBeforeGenerate deletes the stored entries of the day before a new run stores its own.
	ClearBeforeGenerate bool
	// PolicyDir enables persisted Q-tables when non-empty.
	PolicyDir string

	RegenerateCron     string // empty disables the sweep
	GenerateRatePerSec float64
	GenerateBurst      int
	GenerateTimeout    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	workday, err := parseWorkday(getEnv("DAY_START", "08:00"), getEnv("DAY_END", "17:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: TIMEZONE: %w", err)
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		GRPCPort:            getEnv("GRPC_PORT", ""),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		LogLevel:            parseLevel(getEnv("LOG_LEVEL", "info")),
		DBDriver:            strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:              getEnv("DB_PATH", "./data/fika.db"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		Workday:             workday,
		Location:            loc,
		ClearBeforeGenerate: getEnvBool("CLEAR_BEFORE_GENERATE", true),
		PolicyDir:           getEnv("POLICY_DIR", ""),
		RegenerateCron:      getEnv("REGENERATE_CRON", ""),
		GenerateRatePerSec:  getEnvFloat("GENERATE_RATE_PER_SEC", 1),
		GenerateBurst:       getEnvInt("GENERATE_BURST", 3),
		GenerateTimeout:     getEnvDuration("GENERATE_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	if err := c.Workday.Validate(); err != nil {
		return fmt.Errorf("DAY_START/DAY_END: %w", err)
	}
	if c.GenerateRatePerSec <= 0 {
		return fmt.Errorf("GENERATE_RATE_PER_SEC must be > 0")
	}
	if c.GenerateBurst <= 0 {
		return fmt.Errorf("GENERATE_BURST must be > 0")
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("GENERATE_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// parseWorkday parses "HH:MM" bounds into offsets from midnight.
func parseWorkday(start, end string) (scheduler.Workday, error) {
	s, err := parseClock(start)
	if err != nil {
		return scheduler.Workday{}, fmt.Errorf("DAY_START: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return scheduler.Workday{}, fmt.Errorf("DAY_END: %w", err)
	}
	return scheduler.Workday{Start: s, End: e}, nil
}

func parseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
