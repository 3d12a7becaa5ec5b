package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed number of microphone channels reported by the board (A0-A5).
const ChannelCount = 6

type Protocol string

const (
	ProtocolText   Protocol = "text"
	ProtocolBinary Protocol = "binary"
)

func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolText:
		return ProtocolText, nil
	case ProtocolBinary:
		return ProtocolBinary, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Metric identifies one tracked series of a channel.
type Metric uint8

const (
	MetricRMS Metric = iota
	MetricMin
	MetricMax
	MetricAmplitude
	MetricRaw

	MetricCount = int(MetricRaw) + 1
)

var metricNames = [MetricCount]string{"rms", "min", "max", "amplitude", "raw"}

func (m Metric) String() string {
	if int(m) < MetricCount {
		return metricNames[m]
	}
	return fmt.Sprintf("metric(%d)", m)
}

func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(b []byte) error {
	parsed, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func ParseMetric(s string) (Metric, error) {
	for i, name := range metricNames {
		if name == s {
			return Metric(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// MetricsFor lists the series a protocol produces, in display order.
func MetricsFor(p Protocol) []Metric {
	if p == ProtocolBinary {
		return []Metric{MetricRaw}
	}
	return []Metric{MetricRMS, MetricMin, MetricMax, MetricAmplitude}
}

// Sample is one decoded measurement of one channel.
// Text samples fill Min, Max, AmplitudeMV and RMSMV; binary samples fill Raw.
type Sample struct {
	Protocol  Protocol `json:"protocol"`
	Channel   int      `json:"channel"`
	Timestamp float64  `json:"timestamp"` // seconds since capture start

	// Text protocol
	Min         int     `json:"min,omitempty"`
	Max         int     `json:"max,omitempty"`
	AmplitudeMV float64 `json:"amplitude_mv,omitempty"`
	RMSMV       float64 `json:"rms_mv,omitempty"`

	// Binary protocol
	Raw int16 `json:"raw,omitempty"`
}

// Value returns the sample's value for metric m, false if the sample's
// protocol does not carry that metric.
func (s Sample) Value(m Metric) (float64, bool) {
	if s.Protocol == ProtocolBinary {
		if m == MetricRaw {
			return float64(s.Raw), true
		}
		return 0, false
	}
	switch m {
	case MetricRMS:
		return s.RMSMV, true
	case MetricMin:
		return float64(s.Min), true
	case MetricMax:
		return float64(s.Max), true
	case MetricAmplitude:
		return s.AmplitudeMV, true
	}
	return 0, false
}

func (s Sample) ToJsonBytes() []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
