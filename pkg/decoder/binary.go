package decoder

import (
	"encoding/binary"
	"time"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

// BinaryDecoder reads frames of one little-endian int16 per channel, in
// channel order, with no header or checksum. Frame boundaries come from the
// byte count alone.
type BinaryDecoder struct {
	channels   int
	frameSize  int
	period     float64 // seconds
	pending    []byte
	frameIndex uint64
}

func NewBinaryDecoder(channels int, samplePeriod time.Duration) *BinaryDecoder {
	return &BinaryDecoder{
		channels:  channels,
		frameSize: channels * 2,
		period:    samplePeriod.Seconds(),
	}
}

func (d *BinaryDecoder) Protocol() types.Protocol { return types.ProtocolBinary }

func (d *BinaryDecoder) Reset() {
	d.pending = d.pending[:0]
	d.frameIndex = 0
}

// Pending is the number of buffered bytes short of a full frame.
func (d *BinaryDecoder) Pending() int { return len(d.pending) }

// Feed ignores now: every frame is stamped frameIndex * samplePeriod.
func (d *BinaryDecoder) Feed(chunk []byte, _ float64) []types.Sample {
	d.pending = append(d.pending, chunk...)

	frames := len(d.pending) / d.frameSize
	if frames == 0 {
		return nil
	}

	samples := make([]types.Sample, 0, frames*d.channels)
	for f := 0; f < frames; f++ {
		frame := d.pending[f*d.frameSize : (f+1)*d.frameSize]
		ts := float64(d.frameIndex) * d.period
		for ch := 0; ch < d.channels; ch++ {
			samples = append(samples, types.Sample{
				Protocol:  types.ProtocolBinary,
				Channel:   ch,
				Timestamp: ts,
				Raw:       int16(binary.LittleEndian.Uint16(frame[ch*2:])),
			})
		}
		d.frameIndex++
	}

	d.pending = append(d.pending[:0], d.pending[frames*d.frameSize:]...)
	return samples
}
