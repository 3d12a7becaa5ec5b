package channelstore

import (
	"errors"
	"sync"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

var (
	ErrChannelOutOfRange = errors.New("channel out of range")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrOutOfOrder        = errors.New("timestamp older than series tail")
	ErrInvalidCapacity   = errors.New("max points must be positive")
)

// Series is a point-in-time copy of one channel metric, oldest first.
type Series struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
}

func (s Series) Len() int { return len(s.Times) }

// ring is a fixed capacity FIFO of (time, value) pairs.
type ring struct {
	times  []float64
	values []float64
	head   int // index of the oldest point
	size   int
}

// Store keeps one bounded series per channel per metric.
// One writer and any number of readers; every operation holds the lock for
// a single append, copy or wipe only.
type Store struct {
	mu        sync.RWMutex
	maxPoints int
	series    [types.ChannelCount][types.MetricCount]ring
	revision  uint64
}
