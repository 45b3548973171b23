package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "./data/fika.db")
	t.Setenv("DAY_START", "08:00")
	t.Setenv("DAY_END", "17:00")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GENERATE_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, scheduler.DefaultWorkday, cfg.Workday)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.GenerateTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsBadWorkday(t *testing.T) {
	t.Setenv("DAY_START", "18:00")
	t.Setenv("DAY_END", "09:00")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DAY_START", "nine")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidateDriver(t *testing.T) {
	cfg := &Config{
		Port:               "8080",
		DBDriver:           DriverPostgres,
		Workday:            scheduler.DefaultWorkday,
		GenerateRatePerSec: 1,
		GenerateBurst:      1,
		GenerateTimeout:    time.Second,
	}
	assert.Error(t, cfg.Validate(), "postgres requires DATABASE_URL")

	cfg.DatabaseURL = "postgres://localhost/fika"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestParseClock(t *testing.T) {
	d, err := parseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, d)

	d, err = parseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = parseClock("25:00")
	assert.Error(t, err)
}
