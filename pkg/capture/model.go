// Package capture runs the producer side of the monitor: it drains the
// serial transport, decodes, and appends samples to the channel store.
//
// Starting a new session after an earlier one clears the channel store,
// since session time restarts at zero.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
	"github.com/NotCoffee418/mic_monitor/pkg/decoder"
	"github.com/NotCoffee418/mic_monitor/pkg/frequency"
	"github.com/NotCoffee418/mic_monitor/pkg/port_reader"
)

var (
	ErrStopTimeout = errors.New("capture loop did not exit in time")
	ErrPanic       = errors.New("capture iteration panicked")
)

const (
	DefaultPollInterval = time.Millisecond
	DefaultErrorBackoff = 100 * time.Millisecond
	DefaultStopTimeout  = 2 * time.Second
	DefaultReadChunk    = 4096
	DefaultRawEcho      = 5
)

type Options struct {
	// Sleep when no bytes are waiting. Bounds how late a stop is seen.
	PollInterval time.Duration
	// Pause after a transport error before retrying.
	ErrorBackoff time.Duration
	// How long Stop waits for the drain goroutine.
	StopTimeout time.Duration
	ReadChunk   int
	// Number of raw chunks logged at debug level after each start.
	RawEcho int
	// Called from the capture goroutine for every transport error.
	OnError func(error)
	Logger  *zerolog.Logger
}

// Status is a read-only copy of the session state.
type Status struct {
	Running      bool       `json:"running"`
	SessionID    string     `json:"session_id,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	Elapsed      float64    `json:"elapsed"`
	TotalSamples uint64     `json:"total_samples"`
	RateHz       float64    `json:"rate_hz"`
	// When RateHz was last published. Nil before the first full window.
	RateAt       *time.Time `json:"rate_at,omitempty"`
	Errors       uint64     `json:"errors"`
	LastError    string     `json:"last_error,omitempty"`
}

type session struct {
	id      uuid.UUID
	start   time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	samples atomic.Uint64
	errors  atomic.Uint64
	lastErr atomic.Pointer[string]
}

// Loop is Idle until Start and returns to Idle on Stop.
type Loop struct {
	transport port_reader.Transport
	decoder   decoder.Decoder
	store     *channelstore.Store
	estimator *frequency.Estimator
	opts      Options
	logger    zerolog.Logger

	mu      sync.Mutex
	current *session // nil while idle
	last    *session // most recent session, kept for Status after stop
}
