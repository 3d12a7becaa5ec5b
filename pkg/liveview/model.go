// Package liveview is the consumer side of the monitor. It snapshots the
// channel store on a timer, applies the view policy and pushes the result to
// a single websocket viewer.
package liveview

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/NotCoffee418/mic_monitor/pkg/capture"
	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
	"github.com/NotCoffee418/mic_monitor/pkg/view"
)

// MetricFrame is one plotted series with its axis bounds.
type MetricFrame struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
	YMin   float64   `json:"y_min"`
	YMax   float64   `json:"y_max"`
	Unit   string    `json:"unit"`
}

type ChannelFrame struct {
	Channel int                          `json:"channel"`
	Metrics map[types.Metric]MetricFrame `json:"metrics"`
}

// Frame is everything a viewer needs to draw one refresh.
type Frame struct {
	Time     time.Time      `json:"time"`
	Protocol types.Protocol `json:"protocol"`
	Status   capture.Status `json:"status"`
	Policy   view.Policy    `json:"policy"`
	XMin     float64        `json:"x_min"`
	XMax     float64        `json:"x_max"`
	Channels []ChannelFrame `json:"channels"`
}

func (f *Frame) ToJsonBytes() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	return b
}

// FrameFromJsonBytes returns nil for anything that is not a frame.
func FrameFromJsonBytes(b []byte) *Frame {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	if f.Time.IsZero() {
		return nil
	}
	return &f
}

// Controller is the part of the capture loop the HTTP surface drives.
type Controller interface {
	Start() error
	Stop() error
	Status() capture.Status
}

var _ Controller = (*capture.Loop)(nil)

// ValueScale converts a stored value for display, e.g. ADC counts to mV.
type ValueScale struct {
	Metric types.Metric
	Unit   string
	Apply  func(float64) float64
}

type Options struct {
	Protocol types.Protocol
	Policy   view.Policy
	Scales   []ValueScale
	Logger   *zerolog.Logger
}

type Server struct {
	store    *channelstore.Store
	capture  Controller
	protocol types.Protocol
	metrics  []types.Metric
	scales   map[types.Metric]ValueScale
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	policyMu sync.Mutex
	policy   view.Policy
	refresh  chan time.Duration

	latestMu sync.RWMutex
	latest   *Frame

	// One viewer at a time; a new connection replaces the old one.
	viewerMu sync.Mutex
	viewer   *websocket.Conn
}
