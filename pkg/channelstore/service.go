package channelstore

import (
	"fmt"
	"math"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

// New allocates every series up front. Capacity cannot change later.
func New(maxPoints int) (*Store, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, maxPoints)
	}
	s := &Store{maxPoints: maxPoints}
	for ch := range s.series {
		for m := range s.series[ch] {
			s.series[ch][m] = ring{
				times:  make([]float64, maxPoints),
				values: make([]float64, maxPoints),
			}
		}
	}
	return s, nil
}

func (s *Store) Capacity() int { return s.maxPoints }

// Append adds one point, evicting the oldest once the series is full.
func (s *Store) Append(channel int, metric types.Metric, t, v float64) error {
	if err := checkIndex(channel, metric); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.series[channel][metric].push(s.maxPoints, t, v); err != nil {
		return err
	}
	s.revision++
	return nil
}

// AppendSample writes every metric carried by the sample as one mutation.
func (s *Store) AppendSample(sample types.Sample) error {
	if err := checkIndex(sample.Channel, 0); err != nil {
		return err
	}
	metrics := types.MetricsFor(sample.Protocol)

	s.mu.Lock()
	defer s.mu.Unlock()

	series := &s.series[sample.Channel]
	for _, m := range metrics {
		if r := &series[m]; r.size > 0 && sample.Timestamp < r.last() {
			return fmt.Errorf("%w: channel %d %s t=%.6f", ErrOutOfOrder, sample.Channel, m, sample.Timestamp)
		}
	}
	for _, m := range metrics {
		v, _ := sample.Value(m)
		series[m].pushUnchecked(s.maxPoints, sample.Timestamp, v)
	}
	s.revision++
	return nil
}

// Snapshot copies one series. The copy stays valid while appends continue.
func (s *Store) Snapshot(channel int, metric types.Metric) (Series, error) {
	if err := checkIndex(channel, metric); err != nil {
		return Series{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[channel][metric].copyOut(), nil
}

// SnapshotChannel copies the given metrics of one channel under one lock,
// so they line up point for point.
func (s *Store) SnapshotChannel(channel int, metrics []types.Metric) (map[types.Metric]Series, error) {
	for _, m := range metrics {
		if err := checkIndex(channel, m); err != nil {
			return nil, err
		}
	}
	out := make(map[types.Metric]Series, len(metrics))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range metrics {
		out[m] = s.series[channel][m].copyOut()
	}
	return out, nil
}

// Clear empties every series at once. Capacity is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.series {
		for m := range s.series[ch] {
			s.series[ch][m].head = 0
			s.series[ch][m].size = 0
		}
	}
	s.revision++
}

func (s *Store) Len(channel int, metric types.Metric) int {
	if checkIndex(channel, metric) != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[channel][metric].size
}

// Latest returns the newest timestamp across all series.
func (s *Store) Latest() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest, found := math.Inf(-1), false
	for ch := range s.series {
		for m := range s.series[ch] {
			r := &s.series[ch][m]
			if r.size == 0 {
				continue
			}
			if t := r.last(); t > latest {
				latest = t
			}
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return latest, true
}

// Revision changes on every mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func checkIndex(channel int, metric types.Metric) error {
	if channel < 0 || channel >= types.ChannelCount {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	if int(metric) >= types.MetricCount {
		return fmt.Errorf("%w: %d", ErrUnknownMetric, metric)
	}
	return nil
}

func (r *ring) last() float64 {
	return r.times[(r.head+r.size-1)%len(r.times)]
}

func (r *ring) push(capacity int, t, v float64) error {
	if r.size > 0 && t < r.last() {
		return fmt.Errorf("%w: t=%.6f", ErrOutOfOrder, t)
	}
	r.pushUnchecked(capacity, t, v)
	return nil
}

func (r *ring) pushUnchecked(capacity int, t, v float64) {
	if r.size < capacity {
		idx := (r.head + r.size) % capacity
		r.times[idx], r.values[idx] = t, v
		r.size++
		return
	}
	r.times[r.head], r.values[r.head] = t, v
	r.head = (r.head + 1) % capacity
}

func (r *ring) copyOut() Series {
	out := Series{
		Times:  make([]float64, r.size),
		Values: make([]float64, r.size),
	}
	n := len(r.times)
	first := min(r.size, n-r.head)
	copy(out.Times, r.times[r.head:r.head+first])
	copy(out.Values, r.values[r.head:r.head+first])
	copy(out.Times[first:], r.times[:r.size-first])
	copy(out.Values[first:], r.values[:r.size-first])
	return out
}
