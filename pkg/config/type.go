package config

type MonitorConfig struct {
	SerialDevice  string `toml:"serial_device"`
	Baudrate      uint   `toml:"baudrate"`
	ReadTimeoutMs int    `toml:"read_timeout_ms"`
	// "text" or "binary"
	Protocol       string `toml:"protocol"`
	MaxPoints      int    `toml:"max_points"`
	SamplePeriodUs int    `toml:"sample_period_us"` // binary only

	RefreshMs     int     `toml:"refresh_ms"`
	WindowSeconds float64 `toml:"window_seconds"`
	FullHistory   bool    `toml:"full_history"`
	AutoScale     bool    `toml:"auto_scale"`
	YMin          float64 `toml:"y_min"`
	YMax          float64 `toml:"y_max"`

	// Raw count to millivolt conversion for the binary protocol.
	// Zero disables conversion.
	AdcVrefMv    float64 `toml:"adc_vref_mv"`
	AdcFullScale int     `toml:"adc_full_scale"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	LogLevel      string `toml:"log_level"`
}

type TailConfig struct {
	MonitorHost string `toml:"monitor_host"`
	Channel     int    `toml:"channel"` // -1 for all
}
