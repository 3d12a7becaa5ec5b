// Package view holds the operator's display settings and derives the visible
// time range and Y bounds from them.
package view

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
)

var (
	ErrInvalidWindow  = errors.New("window width must be positive")
	ErrInvalidBounds  = errors.New("y min must be below y max")
	ErrInvalidRefresh = errors.New("refresh interval out of range")
)

const (
	MinRefresh = 100 * time.Millisecond
	MaxRefresh = 2000 * time.Millisecond
)

// Policy is a plain value. Callers sharing one across goroutines guard it.
type Policy struct {
	WindowSeconds float64       `json:"window_seconds"`
	FullHistory   bool          `json:"full_history"`
	AutoScale     bool          `json:"auto_scale"`
	YMin          float64       `json:"y_min"`
	YMax          float64       `json:"y_max"`
	Refresh       time.Duration `json:"refresh"`
}

func DefaultPolicy() Policy {
	return Policy{
		WindowSeconds: 10,
		AutoScale:     true,
		YMin:          0,
		YMax:          1000,
		Refresh:       500 * time.Millisecond,
	}
}

// SetWindow keeps the previous width when w is not a positive number.
func (p *Policy) SetWindow(w float64) error {
	if !(w > 0) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, w)
	}
	p.WindowSeconds = w
	return nil
}

// SetFixedBounds switches to fixed scaling. Invalid bounds leave both the
// bounds and the scale mode unchanged.
func (p *Policy) SetFixedBounds(yMin, yMax float64) error {
	if math.IsNaN(yMin) || math.IsNaN(yMax) || yMin >= yMax {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, yMin, yMax)
	}
	p.YMin, p.YMax = yMin, yMax
	p.AutoScale = false
	return nil
}

func (p *Policy) SetRefresh(d time.Duration) error {
	if d < MinRefresh || d > MaxRefresh {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidRefresh, d, MinRefresh, MaxRefresh)
	}
	p.Refresh = d
	return nil
}

// VisibleRange returns [0, tNow] for full history, else the last
// WindowSeconds before tNow clamped at zero.
func (p Policy) VisibleRange(tNow float64) (lo, hi float64) {
	if tNow < 0 {
		tNow = 0
	}
	if p.FullHistory {
		return 0, tNow
	}
	return math.Max(0, tNow-p.WindowSeconds), tNow
}

// YBounds returns the fixed bounds, or the extent of the given (already
// clipped) series when auto scaling. Flat or empty data gets a unit margin.
func (p Policy) YBounds(series ...channelstore.Series) (lo, hi float64) {
	if !p.AutoScale {
		return p.YMin, p.YMax
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	switch {
	case math.IsInf(lo, 1):
		return 0, 1
	case lo == hi:
		return lo - 1, hi + 1
	}
	return lo, hi
}

// Clip returns the points of s with lo <= t <= hi. Times must be sorted.
// The result shares storage with s.
func Clip(s channelstore.Series, lo, hi float64) channelstore.Series {
	start := sort.SearchFloat64s(s.Times, lo)
	end := sort.Search(len(s.Times), func(i int) bool { return s.Times[i] > hi })
	if start >= end {
		return channelstore.Series{Times: []float64{}, Values: []float64{}}
	}
	return channelstore.Series{Times: s.Times[start:end], Values: s.Values[start:end]}
}
