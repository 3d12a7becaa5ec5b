package decoder

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

func frame(values ...int16) []byte {
	b := make([]byte, 0, len(values)*2)
	for _, v := range values {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func TestBinaryDecodesOneFrame(t *testing.T) {
	d := NewBinaryDecoder(types.ChannelCount, time.Millisecond)

	values := []int16{0, 1, -1, 32767, -32768, 1234}
	samples := d.Feed(frame(values...), 99)
	require.Len(t, samples, 6)
	for ch, s := range samples {
		assert.Equal(t, types.ProtocolBinary, s.Protocol)
		assert.Equal(t, ch, s.Channel)
		assert.Equal(t, values[ch], s.Raw)
		assert.Equal(t, 0.0, s.Timestamp)
	}
	assert.Equal(t, 0, d.Pending())
}

func TestBinaryKeepsPartialFrame(t *testing.T) {
	for extra := 1; extra <= 11; extra++ {
		d := NewBinaryDecoder(types.ChannelCount, time.Millisecond)

		input := append(frame(1, 2, 3, 4, 5, 6), frame(7, 8, 9, 10, 11, 12)[:extra]...)
		samples := d.Feed(input, 0)
		require.Len(t, samples, 6, "extra=%d", extra)
		assert.Equal(t, extra, d.Pending(), "extra=%d", extra)

		rest := frame(7, 8, 9, 10, 11, 12)[extra:]
		samples = d.Feed(rest, 0)
		require.Len(t, samples, 6, "extra=%d", extra)
		assert.Equal(t, int16(7), samples[0].Raw)
		assert.Equal(t, int16(12), samples[5].Raw)
		assert.InDelta(t, 0.001, samples[0].Timestamp, 1e-12)
		assert.Equal(t, 0, d.Pending())
	}
}

func TestBinaryBuffersShortInput(t *testing.T) {
	for n := 0; n <= 11; n++ {
		d := NewBinaryDecoder(types.ChannelCount, time.Millisecond)
		samples := d.Feed(make([]byte, n), 0)
		assert.Empty(t, samples)
		assert.Equal(t, n, d.Pending())
	}
}

func TestBinaryByteAtATime(t *testing.T) {
	d := NewBinaryDecoder(types.ChannelCount, 125*time.Microsecond)

	stream := append(frame(1, 2, 3, 4, 5, 6), frame(-1, -2, -3, -4, -5, -6)...)
	var got []types.Sample
	for _, b := range stream {
		got = append(got, d.Feed([]byte{b}, 0)...)
	}
	require.Len(t, got, 12)
	assert.Equal(t, int16(-6), got[11].Raw)
	assert.InDelta(t, 125e-6, got[11].Timestamp, 1e-12)
	assert.Equal(t, uint64(2), d.frameIndex)
}

func TestBinaryFrameIndexIsCumulative(t *testing.T) {
	d := NewBinaryDecoder(types.ChannelCount, 10*time.Millisecond)

	d.Feed(append(frame(0, 0, 0, 0, 0, 0), frame(0, 0, 0, 0, 0, 0)...), 0)
	samples := d.Feed(frame(1, 1, 1, 1, 1, 1), 0)
	require.Len(t, samples, 6)
	for _, s := range samples {
		assert.InDelta(t, 0.02, s.Timestamp, 1e-12)
	}

	d.Reset()
	samples = d.Feed(frame(1, 1, 1, 1, 1, 1), 0)
	assert.Equal(t, 0.0, samples[0].Timestamp)
}

func TestNewDecoder(t *testing.T) {
	dec, err := New(types.ProtocolText, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolText, dec.Protocol())

	dec, err = New(types.ProtocolBinary, Options{SamplePeriod: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolBinary, dec.Protocol())

	_, err = New(types.ProtocolBinary, Options{})
	assert.Error(t, err)

	_, err = New("csv", Options{})
	assert.Error(t, err)
}
