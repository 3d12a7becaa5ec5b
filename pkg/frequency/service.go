// Package frequency estimates the effective sample rate of the capture loop.
//
// The rate is published at most once per window (one second by default) as
// count/elapsed over that window and held unchanged until the next window
// closes. Bursts shorter than the window are averaged away.
package frequency

import (
	"sync"
	"time"
)

const DefaultWindow = time.Second

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func RealClock() Clock { return realClock{} }

type Estimator struct {
	mu          sync.Mutex
	clock       Clock
	window      time.Duration
	count       uint64
	windowStart time.Time
	rate        float64
	publishedAt time.Time
}

func New(clock Clock) *Estimator {
	if clock == nil {
		clock = RealClock()
	}
	return &Estimator{
		clock:       clock,
		window:      DefaultWindow,
		windowStart: clock.Now(),
	}
}

// Add counts n decoded samples and publishes if the window has elapsed.
func (e *Estimator) Add(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count += uint64(n)
	e.publishLocked(e.clock.Now())
}

// Tick publishes without new samples, so a stalled stream decays to zero
// instead of holding its last rate forever.
func (e *Estimator) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishLocked(e.clock.Now())
}

// Rate is the last published rate in samples per second.
func (e *Estimator) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Estimator) PublishedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publishedAt
}

// Reset drops the count and the published rate.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count = 0
	e.rate = 0
	e.windowStart = e.clock.Now()
	e.publishedAt = time.Time{}
}

func (e *Estimator) publishLocked(now time.Time) {
	elapsed := now.Sub(e.windowStart)
	if elapsed < e.window {
		return
	}
	e.rate = float64(e.count) / elapsed.Seconds()
	e.count = 0
	e.windowStart = now
	e.publishedAt = now
}
