package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ventctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
interval = 120
max_concurrent = 8
retention_days = 14
close_inactive = true
standard_vents = 2
minimum_percent = 10
round_to = 5
max_run_minutes = 60
timezone = "Europe/Oslo"
cooling_setpoint = 23.5
log_level = "debug"
database = "/path/to/history.db"
`)
	configPath := filepath.Join(tempDir, "ventctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("VENTCTL_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Interval, "Expected Interval 120")
	assert.Equal(t, 8, cfg.MaxConcurrent, "Expected MaxConcurrent 8")
	assert.Equal(t, 14, cfg.RetentionDays, "Expected RetentionDays 14")
	assert.True(t, cfg.CloseInactive, "Expected CloseInactive true")
	assert.Equal(t, 2, cfg.StandardVents, "Expected StandardVents 2")
	assert.Equal(t, 10, cfg.MinimumPercent, "Expected MinimumPercent 10")
	assert.Equal(t, 5, cfg.RoundTo, "Expected RoundTo 5")
	assert.Equal(t, 60, cfg.MaxRunMinutes, "Expected MaxRunMinutes 60")
	assert.Equal(t, "Europe/Oslo", cfg.Timezone, "Expected Timezone Europe/Oslo")
	assert.InDelta(t, 23.5, cfg.CoolingSetpoint, 0.001, "Expected CoolingSetpoint 23.5")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "/path/to/history.db", cfg.Database, "Expected Database /path/to/history.db")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VENTCTL_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, 300, cfg.Interval, "Expected default Interval 300")
	assert.Equal(t, 4, cfg.MaxConcurrent, "Expected default MaxConcurrent 4")
	assert.Equal(t, 30, cfg.RetentionDays, "Expected default RetentionDays 30")
	assert.False(t, cfg.CloseInactive, "Expected default CloseInactive false")
	assert.Equal(t, 0, cfg.StandardVents, "Expected default StandardVents 0")
	assert.Equal(t, 5, cfg.MinimumPercent, "Expected default MinimumPercent 5")
	assert.Equal(t, 30, cfg.MinFlowPercent, "Expected default MinFlowPercent 30")
	assert.Equal(t, 90, cfg.MaxRunMinutes, "Expected default MaxRunMinutes 90")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
This is not a valid TOML file
`)
	configPath := filepath.Join(tempDir, "ventctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("VENTCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
log_level = "invalid"
`)
	configPath := filepath.Join(tempDir, "ventctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("VENTCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestInvalidInterval(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
interval = 0
`)
	configPath := filepath.Join(tempDir, "ventctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("VENTCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid interval value")
}

func TestLogLevelFlag(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	t.Setenv("VENTCTL_CONFIG", "")
	os.Args = []string{"cmd", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}
