package liveview

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
	"github.com/NotCoffee418/mic_monitor/pkg/view"
)

const writeTimeout = 2 * time.Second

var defaultUnits = map[types.Metric]string{
	types.MetricRMS:       "mV",
	types.MetricAmplitude: "mV",
	types.MetricMin:       "ADC",
	types.MetricMax:       "ADC",
	types.MetricRaw:       "ADC",
}

func NewServer(store *channelstore.Store, ctrl Controller, opts Options) *Server {
	if opts.Policy.Refresh <= 0 {
		opts.Policy.Refresh = view.DefaultPolicy().Refresh
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	scales := make(map[types.Metric]ValueScale, len(opts.Scales))
	for _, sc := range opts.Scales {
		scales[sc.Metric] = sc
	}

	return &Server{
		store:    store,
		capture:  ctrl,
		protocol: opts.Protocol,
		metrics:  types.MetricsFor(opts.Protocol),
		scales:   scales,
		logger:   logger.With().Str("component", "liveview").Logger(),
		policy:   opts.Policy,
		refresh:  make(chan time.Duration, 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local operator only
			},
		},
	}
}

// Run renders at the policy's refresh interval until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Policy().Refresh)
	defer ticker.Stop()

	var lastRevision uint64
	var lastPolicy view.Policy
	first := true
	for {
		select {
		case <-ctx.Done():
			s.closeViewer()
			return
		case d := <-s.refresh:
			ticker.Reset(d)
		case <-ticker.C:
			rev, policy := s.store.Revision(), s.Policy()
			// Status and rate still change while data is idle, so only
			// skip the snapshot work, not the push.
			if first || rev != lastRevision || policy != lastPolicy {
				s.setLatest(s.Render())
				lastRevision, lastPolicy, first = rev, policy, false
			} else if f := s.Latest(); f != nil {
				refreshed := *f
				refreshed.Time = time.Now()
				refreshed.Status = s.capture.Status()
				s.setLatest(&refreshed)
			}
			s.pushToViewer(s.Latest())
		}
	}
}

// Render builds a frame from fresh snapshots. Never blocks capture beyond
// one snapshot copy per series.
func (s *Server) Render() *Frame {
	policy := s.Policy()
	tNow, _ := s.store.Latest()
	lo, hi := policy.VisibleRange(tNow)

	frame := &Frame{
		Time:     time.Now(),
		Protocol: s.protocol,
		Status:   s.capture.Status(),
		Policy:   policy,
		XMin:     lo,
		XMax:     hi,
		Channels: make([]ChannelFrame, 0, types.ChannelCount),
	}

	for ch := 0; ch < types.ChannelCount; ch++ {
		snaps, err := s.store.SnapshotChannel(ch, s.metrics)
		if err != nil {
			s.logger.Error().Err(err).Int("channel", ch).Msg("Snapshot failed")
			continue
		}
		cf := ChannelFrame{Channel: ch, Metrics: make(map[types.Metric]MetricFrame, len(s.metrics))}
		for _, m := range s.metrics {
			visible := s.scale(m, view.Clip(snaps[m], lo, hi))
			yMin, yMax := policy.YBounds(visible)
			cf.Metrics[m] = MetricFrame{
				Times:  visible.Times,
				Values: visible.Values,
				YMin:   yMin,
				YMax:   yMax,
				Unit:   s.unit(m),
			}
		}
		frame.Channels = append(frame.Channels, cf)
	}
	return frame
}

func (s *Server) Latest() *Frame {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

func (s *Server) setLatest(f *Frame) {
	s.latestMu.Lock()
	s.latest = f
	s.latestMu.Unlock()
}

func (s *Server) Policy() view.Policy {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	return s.policy
}

// UpdatePolicy applies fn to a copy of the policy and keeps the result only
// if fn succeeds.
func (s *Server) UpdatePolicy(fn func(p *view.Policy) error) (view.Policy, error) {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	next := s.policy
	if err := fn(&next); err != nil {
		return s.policy, err
	}
	if next.Refresh != s.policy.Refresh {
		select {
		case s.refresh <- next.Refresh:
		default:
			// A pending change is still queued; replace it.
			select {
			case <-s.refresh:
			default:
			}
			s.refresh <- next.Refresh
		}
	}
	s.policy = next
	return next, nil
}

func (s *Server) scale(m types.Metric, series channelstore.Series) channelstore.Series {
	sc, ok := s.scales[m]
	if !ok || sc.Apply == nil {
		return series
	}
	out := channelstore.Series{Times: series.Times, Values: make([]float64, len(series.Values))}
	for i, v := range series.Values {
		out.Values[i] = sc.Apply(v)
	}
	return out
}

func (s *Server) unit(m types.Metric) string {
	if sc, ok := s.scales[m]; ok && sc.Unit != "" {
		return sc.Unit
	}
	return defaultUnits[m]
}

func (s *Server) setViewer(conn *websocket.Conn) {
	s.viewerMu.Lock()
	old := s.viewer
	s.viewer = conn
	if f := s.Latest(); f != nil {
		s.writeLocked(conn, f)
	}
	s.viewerMu.Unlock()

	if old != nil {
		s.logger.Info().Str("remote", old.RemoteAddr().String()).Msg("Viewer replaced by new connection")
		old.Close()
	}
}

func (s *Server) dropViewer(conn *websocket.Conn) {
	s.viewerMu.Lock()
	if s.viewer == conn {
		s.viewer = nil
	}
	s.viewerMu.Unlock()
	conn.Close()
}

func (s *Server) closeViewer() {
	s.viewerMu.Lock()
	conn := s.viewer
	s.viewer = nil
	s.viewerMu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (s *Server) pushToViewer(f *Frame) {
	if f == nil {
		return
	}
	s.viewerMu.Lock()
	conn := s.viewer
	if conn == nil {
		s.viewerMu.Unlock()
		return
	}
	err := s.writeLocked(conn, f)
	s.viewerMu.Unlock()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Viewer write failed, dropping viewer")
		s.dropViewer(conn)
	}
}

func (s *Server) writeLocked(conn *websocket.Conn, f *Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, f.ToJsonBytes())
}
