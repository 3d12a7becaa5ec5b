package decoder

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/NotCoffee418/mic_monitor/pkg/esmutils"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

// Longest unterminated line kept between reads. Anything longer is noise.
const maxLineLength = 512

// Format: "A0: MIN=  123 MAX=  456 AMP=123.456mV RMS=789.012mV"
var linePattern = regexp.MustCompile(
	`^A(\d):\s*MIN=\s*(-?\d+)\s+MAX=\s*(-?\d+)\s+AMP=\s*(\d+)\.(\d{3})\s*mV\s+RMS=\s*(\d+)\.(\d{3})\s*mV`,
)

type TextDecoder struct {
	channels int
	pending  []byte
}

func NewTextDecoder(channels int) *TextDecoder {
	return &TextDecoder{
		channels: channels,
		pending:  make([]byte, 0, maxLineLength),
	}
}

func (d *TextDecoder) Protocol() types.Protocol { return types.ProtocolText }

func (d *TextDecoder) Reset() {
	d.pending = d.pending[:0]
}

// Feed splits the stream on '\n'. Every complete line is decoded and stamped
// with now; the unterminated tail waits for the next chunk.
func (d *TextDecoder) Feed(chunk []byte, now float64) []types.Sample {
	d.pending = append(d.pending, chunk...)

	var samples []types.Sample
	start := 0
	for {
		idx := bytes.IndexByte(d.pending[start:], '\n')
		if idx < 0 {
			break
		}
		line := d.pending[start : start+idx]
		start += idx + 1

		if s, ok := d.DecodeLine(string(line)); ok {
			s.Timestamp = now
			samples = append(samples, s)
		}
	}

	d.pending = append(d.pending[:0], d.pending[start:]...)
	if len(d.pending) > maxLineLength {
		d.pending = d.pending[:0]
	}
	return samples
}

// DecodeLine parses one report line. The timestamp is left at zero.
func (d *TextDecoder) DecodeLine(line string) (types.Sample, bool) {
	match := linePattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return types.Sample{}, false
	}

	var fields [7]int
	for i := range fields {
		v, err := strconv.Atoi(match[i+1])
		if err != nil {
			return types.Sample{}, false
		}
		fields[i] = v
	}

	channel := fields[0]
	if channel >= d.channels {
		return types.Sample{}, false
	}

	return types.Sample{
		Protocol:    types.ProtocolText,
		Channel:     channel,
		Min:         fields[1],
		Max:         fields[2],
		AmplitudeMV: esmutils.FixedPointMilli(fields[3], fields[4]),
		RMSMV:       esmutils.FixedPointMilli(fields[5], fields[6]),
	}, true
}
