package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powerstatd/internal/config"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "powerstatd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
interval = 30
disk_poll_interval = 2
disk_device = "/dev/sdb"
cpus = "0-1,3"
arch = "skylake"
log_level = "debug"
metrics = true
metrics_db = "/path/to/reports.db"
textfile = "/path/to/powerstatd.prom"
`)

	// Set environment variable to point to the test config file
	t.Setenv("POWERSTATD_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Interval, "Expected Interval 30")
	assert.Equal(t, 2, cfg.DiskPollInterval, "Expected DiskPollInterval 2")
	assert.Equal(t, "/dev/sdb", cfg.DiskDevice)
	assert.Equal(t, []int{0, 1, 3}, cfg.CPUs)
	assert.Equal(t, "skylake", cfg.Arch)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.True(t, cfg.Metrics, "Expected Metrics true")
	assert.Equal(t, "/path/to/reports.db", cfg.MetricsDB)
	assert.Equal(t, "/path/to/powerstatd.prom", cfg.Textfile)
	assert.Equal(t, "/", cfg.SysfsRoot)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("POWERSTATD_CONFIG", "")

	cfg, err := config.Load(nil, config.WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultDiskPollInterval, cfg.DiskPollInterval)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultMetricsDB, cfg.MetricsDB)
	assert.Equal(t, config.DefaultPIDFile, cfg.PIDFile)
	assert.Empty(t, cfg.DiskDevice)
	assert.Empty(t, cfg.CPUs)
	assert.False(t, cfg.Metrics)
	assert.False(t, cfg.Once)
	assert.Equal(t, time.Minute, cfg.IntervalDuration())
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", writeConfig(t, "invalid = [toml"))

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestLoadMissingExplicitConfig(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", "")

	_, err := config.Load([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", writeConfig(t, `log_level = "invalid_level"`))

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidLogLevel))
	assert.Contains(t, err.Error(), "invalid_level")
}

func TestInvalidInterval(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", "")

	_, err := config.Load([]string{"--interval=0"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidInterval))

	_, err = config.Load([]string{"--disk-poll-interval=-1"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidInterval))
}

func TestInvalidCPUList(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", "")

	_, err := config.Load([]string{"--cpus=a-b"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidConfig))
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", "")

	cfg, err := config.Load([]string{"--debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg, err = config.Load([]string{"--log-level=warning", "--verbose"})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestPrecedence(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", writeConfig(t, "interval = 30\ndisk_poll_interval = 7"))
	t.Setenv("POWERSTATD_INTERVAL", "20")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Interval, "environment overrides file")
	assert.Equal(t, 7, cfg.DiskPollInterval)

	cfg, err = config.Load([]string{"--interval", "10"})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Interval, "flag overrides environment")
}

func TestEnvFile(t *testing.T) {
	t.Setenv("POWERSTATD_CONFIG", "")
	// Register cleanup, then clear so the dotenv value is applied.
	t.Setenv("POWERSTATD_DISK_DEVICE", "unset")
	require.NoError(t, os.Unsetenv("POWERSTATD_DISK_DEVICE"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("POWERSTATD_DISK_DEVICE=/dev/nvme1n1\n"), 0o600))

	cfg, err := config.Load(nil, config.WithEnvFile(envFile))
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme1n1", cfg.DiskDevice)
}
