// Package decoder turns raw bytes from the board into samples.
// Two wire formats exist and one is picked at startup: line based ASCII
// reports (text) and fixed width little-endian frames (binary).
package decoder

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

// Decoder consumes a chunk of bytes and returns every sample completed by it.
// Incomplete input is kept for the next call. Malformed input is dropped,
// never returned as an error. Not safe for concurrent use.
type Decoder interface {
	// now is the capture clock in seconds, used by formats without
	// their own time base.
	Feed(chunk []byte, now float64) []types.Sample
	// Forget buffered bytes and counters, for a new capture session.
	Reset()
	Protocol() types.Protocol
}

var (
	_ Decoder = (*TextDecoder)(nil)
	_ Decoder = (*BinaryDecoder)(nil)
)

type Options struct {
	Channels     int
	SamplePeriod time.Duration // binary only
}

func New(protocol types.Protocol, opts Options) (Decoder, error) {
	if opts.Channels <= 0 {
		opts.Channels = types.ChannelCount
	}
	switch protocol {
	case types.ProtocolText:
		return NewTextDecoder(opts.Channels), nil
	case types.ProtocolBinary:
		if opts.SamplePeriod <= 0 {
			return nil, fmt.Errorf("binary decoder needs a positive sample period, got %v", opts.SamplePeriod)
		}
		return NewBinaryDecoder(opts.Channels, opts.SamplePeriod), nil
	}
	return nil, fmt.Errorf("no decoder for protocol %q", protocol)
}
