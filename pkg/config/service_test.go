package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/mic_monitor/pkg/pathing"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

func TestLoadMonitorConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(pathing.ConfigDirEnv, dir)
	path := filepath.Join(dir, "mic_monitor.toml")

	cfg, warnings, err := LoadMonitorConfig(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultMonitorConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Second load reads the file just written.
	again, warnings, err := LoadMonitorConfig(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, cfg, again)
}

func TestLoadMonitorConfigOverridesAndSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic_monitor.toml")
	content := `
serial_device = "/dev/ttyACM1"
protocol = "binary"
max_points = 500
refresh_ms = 5
y_min = 10.0
y_max = 2.0
log_level = "loud"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, warnings, err := LoadMonitorConfig(path)
	require.NoError(t, err)
	assert.Len(t, warnings, 3)

	assert.Equal(t, "/dev/ttyACM1", cfg.SerialDevice)
	assert.Equal(t, types.ProtocolBinary, cfg.ProtocolType())
	assert.Equal(t, 500, cfg.MaxPoints)

	def := DefaultMonitorConfig()
	assert.Equal(t, def.RefreshMs, cfg.RefreshMs)
	assert.Equal(t, def.YMin, cfg.YMin)
	assert.Equal(t, def.YMax, cfg.YMax)
	assert.Equal(t, "info", cfg.LogLevel)
	// untouched fields keep defaults
	assert.Equal(t, def.Baudrate, cfg.Baudrate)
}

func TestLoadMonitorConfigRejectsBrokenToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic_monitor.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_points = = 3"), 0644))

	_, _, err := LoadMonitorConfig(path)
	assert.Error(t, err)
}

func TestMonitorConfigDerivedValues(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.ListenAddress, cfg.ListenPort = "0.0.0.0", 8080

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout())
	assert.Equal(t, 125*time.Microsecond, cfg.SamplePeriod())

	p := cfg.ViewPolicy()
	assert.Equal(t, cfg.WindowSeconds, p.WindowSeconds)
	assert.Equal(t, 500*time.Millisecond, p.Refresh)
}

func TestLoadTailConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(pathing.ConfigDirEnv, dir)
	path := filepath.Join(dir, "mic_tail.toml")
	require.NoError(t, os.WriteFile(path, []byte(`monitor_host = "pi.local:9040"`), 0644))

	cfg, err := LoadTailConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pi.local:9040", cfg.MonitorHost)
	assert.Equal(t, -1, cfg.Channel)
}
