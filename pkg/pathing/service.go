package pathing

import (
	"os"
	"path/filepath"
)

const appDirName = "mic_monitor"

// Overrides the config directory, mostly for tests and packaging.
const ConfigDirEnv = "MIC_MONITOR_CONFIG_DIR"

func GetConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// Ensure the config directory exists.
func EnsureConfigDir() (string, error) {
	dir := GetConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func GetMonitorConfigPath() string {
	return filepath.Join(GetConfigDir(), "mic_monitor.toml")
}

func GetTailConfigPath() string {
	return filepath.Join(GetConfigDir(), "mic_tail.toml")
}
