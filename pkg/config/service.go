package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/NotCoffee418/mic_monitor/pkg/pathing"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
	"github.com/NotCoffee418/mic_monitor/pkg/view"
)

func DefaultMonitorConfig() *MonitorConfig {
	policy := view.DefaultPolicy()
	return &MonitorConfig{
		SerialDevice:   "/dev/ttyUSB0",
		Baudrate:       115200,
		ReadTimeoutMs:  100,
		Protocol:       string(types.ProtocolText),
		MaxPoints:      100,
		SamplePeriodUs: 125,
		RefreshMs:      int(policy.Refresh / time.Millisecond),
		WindowSeconds:  policy.WindowSeconds,
		FullHistory:    policy.FullHistory,
		AutoScale:      policy.AutoScale,
		YMin:           policy.YMin,
		YMax:           policy.YMax,
		AdcVrefMv:      3300,
		AdcFullScale:   32768,
		ListenAddress:  "127.0.0.1",
		ListenPort:     9040,
		LogLevel:       "info",
	}
}

func DefaultTailConfig() *TailConfig {
	return &TailConfig{
		MonitorHost: "localhost:9040",
		Channel:     -1,
	}
}

// LoadMonitorConfig reads path, writing the defaults there first if the file
// does not exist. Invalid values are replaced by defaults and reported.
func LoadMonitorConfig(path string) (*MonitorConfig, []string, error) {
	cfg := DefaultMonitorConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, nil, err
	}
	warnings := cfg.Sanitize()
	return cfg, warnings, nil
}

func LoadTailConfig(path string) (*TailConfig, error) {
	cfg := DefaultTailConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	if cfg.MonitorHost == "" {
		cfg.MonitorHost = DefaultTailConfig().MonitorHost
	}
	return cfg, nil
}

func loadOrCreate(path string, cfg any) error {
	if path == "" {
		return errors.New("no config path")
	}

	// Create default if not exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := pathing.EnsureConfigDir(); err != nil {
			return err
		}
		cfgFile, err := os.Create(path)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return fmt.Errorf("write default config %s: %w", path, err)
		}
		return nil
	}

	// Load existing config over the defaults
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Sanitize resets invalid fields to their defaults and returns a message for
// each one.
func (c *MonitorConfig) Sanitize() []string {
	def := DefaultMonitorConfig()
	var warnings []string
	reject := func(field string, value any, fallback any) {
		warnings = append(warnings, fmt.Sprintf("invalid %s %v, using %v", field, value, fallback))
	}

	if c.SerialDevice == "" {
		reject("serial_device", `""`, def.SerialDevice)
		c.SerialDevice = def.SerialDevice
	}
	if c.Baudrate == 0 {
		reject("baudrate", c.Baudrate, def.Baudrate)
		c.Baudrate = def.Baudrate
	}
	if c.ReadTimeoutMs <= 0 {
		reject("read_timeout_ms", c.ReadTimeoutMs, def.ReadTimeoutMs)
		c.ReadTimeoutMs = def.ReadTimeoutMs
	}
	if _, err := types.ParseProtocol(c.Protocol); err != nil {
		reject("protocol", c.Protocol, def.Protocol)
		c.Protocol = def.Protocol
	}
	if c.MaxPoints <= 0 {
		reject("max_points", c.MaxPoints, def.MaxPoints)
		c.MaxPoints = def.MaxPoints
	}
	if c.SamplePeriodUs <= 0 {
		reject("sample_period_us", c.SamplePeriodUs, def.SamplePeriodUs)
		c.SamplePeriodUs = def.SamplePeriodUs
	}

	policy := view.DefaultPolicy()
	if err := policy.SetRefresh(time.Duration(c.RefreshMs) * time.Millisecond); err != nil {
		reject("refresh_ms", c.RefreshMs, def.RefreshMs)
		c.RefreshMs = def.RefreshMs
	}
	if err := policy.SetWindow(c.WindowSeconds); err != nil {
		reject("window_seconds", c.WindowSeconds, def.WindowSeconds)
		c.WindowSeconds = def.WindowSeconds
	}
	if err := policy.SetFixedBounds(c.YMin, c.YMax); err != nil {
		reject("y_min/y_max", fmt.Sprintf("[%v, %v]", c.YMin, c.YMax), fmt.Sprintf("[%v, %v]", def.YMin, def.YMax))
		c.YMin, c.YMax = def.YMin, def.YMax
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		reject("listen_port", c.ListenPort, def.ListenPort)
		c.ListenPort = def.ListenPort
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		reject("log_level", c.LogLevel, def.LogLevel)
		c.LogLevel = def.LogLevel
	}
	return warnings
}

func (c *MonitorConfig) ProtocolType() types.Protocol {
	p, err := types.ParseProtocol(c.Protocol)
	if err != nil {
		return types.ProtocolText
	}
	return p
}

func (c *MonitorConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

func (c *MonitorConfig) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodUs) * time.Microsecond
}

// ViewPolicy builds the initial display policy. Call after Sanitize.
func (c *MonitorConfig) ViewPolicy() view.Policy {
	return view.Policy{
		WindowSeconds: c.WindowSeconds,
		FullHistory:   c.FullHistory,
		AutoScale:     c.AutoScale,
		YMin:          c.YMin,
		YMax:          c.YMax,
		Refresh:       time.Duration(c.RefreshMs) * time.Millisecond,
	}
}

func (c *MonitorConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}
