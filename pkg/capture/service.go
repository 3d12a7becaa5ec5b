package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
	"github.com/NotCoffee418/mic_monitor/pkg/decoder"
	"github.com/NotCoffee418/mic_monitor/pkg/frequency"
	"github.com/NotCoffee418/mic_monitor/pkg/port_reader"
)

func New(
	transport port_reader.Transport,
	dec decoder.Decoder,
	store *channelstore.Store,
	estimator *frequency.Estimator,
	opts Options,
) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = DefaultReadChunk
	}
	if opts.RawEcho < 0 {
		opts.RawEcho = 0
	}
	if estimator == nil {
		estimator = frequency.New(nil)
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Loop{
		transport: transport,
		decoder:   dec,
		store:     store,
		estimator: estimator,
		opts:      opts,
		logger:    logger.With().Str("component", "capture").Logger(),
	}
}

// Start begins a new session. No-op if one is already running.
// Series from a previous session are cleared so time restarts at zero.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return nil
	}

	if l.last != nil {
		l.store.Clear()
	}
	l.decoder.Reset()
	l.estimator.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.New(),
		start:  time.Now(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	l.current, l.last = s, s

	l.logger.Info().Str("session", s.id.String()).Str("protocol", string(l.decoder.Protocol())).Msg("Capture started")
	go l.run(ctx, s)
	return nil
}

// Stop ends the session and waits for the drain goroutine to exit.
// The transport is left open; closing it is the owner's job, after Stop.
func (l *Loop) Stop() error {
	l.mu.Lock()
	s := l.current
	if s == nil {
		l.mu.Unlock()
		return nil
	}
	s.cancel()
	l.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(l.opts.StopTimeout):
		return fmt.Errorf("%w after %v", ErrStopTimeout, l.opts.StopTimeout)
	}

	l.mu.Lock()
	if l.current == s {
		l.current = nil
	}
	l.mu.Unlock()

	l.logger.Info().
		Str("session", s.id.String()).
		Uint64("samples", s.samples.Load()).
		Msg("Capture stopped")
	return nil
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	s, running := l.last, l.current != nil
	l.mu.Unlock()

	st := Status{Running: running, RateHz: l.estimator.Rate()}
	if at := l.estimator.PublishedAt(); !at.IsZero() {
		st.RateAt = &at
	}
	if s == nil {
		return st
	}
	st.SessionID = s.id.String()
	started := s.start
	st.StartedAt = &started
	st.TotalSamples = s.samples.Load()
	st.Errors = s.errors.Load()
	if msg := s.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	if running {
		st.Elapsed = time.Since(s.start).Seconds()
	}
	return st
}

// Wait blocks until the most recent session's goroutine has exited, or ctx
// is done. Returns nil right away if no session ever ran.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	s := l.last
	l.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current session's goroutine exits.
// Returns nil while idle.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	return l.current.done
}

func (l *Loop) run(ctx context.Context, s *session) {
	// Back to Idle even when Stop gave up waiting.
	defer func() {
		l.mu.Lock()
		if l.current == s {
			l.current = nil
		}
		l.mu.Unlock()
		close(s.done)
	}()

	buf := make([]byte, l.opts.ReadChunk)
	echoed := 0
	for {
		if ctx.Err() != nil {
			return
		}

		idle, err := l.step(s, buf, &echoed)
		if err != nil {
			l.reportError(s, err)
			if !sleepCtx(ctx, l.opts.ErrorBackoff) {
				return
			}
			continue
		}
		if idle && !sleepCtx(ctx, l.opts.PollInterval) {
			return
		}
	}
}

// step performs one drain iteration. A panic anywhere below is turned into
// an error so the loop survives it.
func (l *Loop) step(s *session, buf []byte, echoed *int) (idle bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	avail, err := l.transport.Available()
	if err != nil {
		return false, fmt.Errorf("check available bytes: %w", err)
	}
	l.estimator.Tick()
	if avail <= 0 {
		return true, nil
	}

	n, err := l.transport.Read(buf[:min(avail, len(buf))])
	if n > 0 {
		if *echoed < l.opts.RawEcho {
			*echoed++
			l.logger.Debug().Str("session", s.id.String()).Bytes("raw", buf[:n]).Msg("Received")
		}
		l.ingest(s, buf[:n])
	}
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}
	return n == 0, nil
}

func (l *Loop) ingest(s *session, chunk []byte) {
	now := time.Since(s.start).Seconds()
	samples := l.decoder.Feed(chunk, now)
	appended := 0
	for _, sample := range samples {
		if err := l.store.AppendSample(sample); err != nil {
			l.logger.Debug().Err(err).Int("channel", sample.Channel).Msg("Dropped sample")
			continue
		}
		appended++
	}
	if appended > 0 {
		s.samples.Add(uint64(appended))
		l.estimator.Add(appended)
	}
}

func (l *Loop) reportError(s *session, err error) {
	count := s.errors.Add(1)
	msg := err.Error()
	s.lastErr.Store(&msg)
	l.logger.Warn().Err(err).Str("session", s.id.String()).Uint64("errors", count).
		Dur("backoff", l.opts.ErrorBackoff).Msg("Error reading serial port")
	if l.opts.OnError != nil {
		l.opts.OnError(err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
