package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

func TestDecodeLine(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	s, ok := d.DecodeLine("A2:  MIN=-120 MAX=340 AMP=12.500mV RMS=8.250mV")
	require.True(t, ok)
	assert.Equal(t, types.ProtocolText, s.Protocol)
	assert.Equal(t, 2, s.Channel)
	assert.Equal(t, -120, s.Min)
	assert.Equal(t, 340, s.Max)
	assert.InDelta(t, 12.5, s.AmplitudeMV, 1e-9)
	assert.InDelta(t, 8.25, s.RMSMV, 1e-9)
}

func TestDecodeLineWhitespaceTolerance(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	lines := []string{
		"A0: MIN=  123 MAX=  456 AMP=123.456mV RMS=789.012mV",
		"A0:MIN=123 MAX=456 AMP= 123.456 mV RMS= 789.012 mV",
		"  A0:   MIN=   123   MAX=   456   AMP=123.456mV   RMS=789.012mV\r",
	}
	for _, line := range lines {
		s, ok := d.DecodeLine(line)
		require.True(t, ok, line)
		assert.Equal(t, 0, s.Channel)
		assert.Equal(t, 123, s.Min)
		assert.Equal(t, 456, s.Max)
		assert.InDelta(t, 123.456, s.AmplitudeMV, 1e-9)
		assert.InDelta(t, 789.012, s.RMSMV, 1e-9)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	lines := []string{
		"",
		"garbage",
		"A6: MIN=1 MAX=2 AMP=1.000mV RMS=1.000mV",  // channel out of range
		"A9: MIN=1 MAX=2 AMP=1.000mV RMS=1.000mV",  // channel out of range
		"A12: MIN=1 MAX=2 AMP=1.000mV RMS=1.000mV", // two digit channel
		"A1: MAX=2 AMP=1.000mV RMS=1.000mV",        // missing MIN
		"A1: MIN=1 MAX=2 AMP=1.000mV",              // missing RMS
		"A1: MIN=x MAX=2 AMP=1.000mV RMS=1.000mV",  // non numeric
		"A1: MIN=1 MAX=2 AMP=1.5mV RMS=1.000mV",    // short fraction
		"A1: MIN=1 MAX=2 AMP=-1.000mV RMS=1.000mV", // negative amplitude
		"A1: MIN=1 MAX=2 AMP=1.000V RMS=1.000mV",   // wrong unit
		"B1: MIN=1 MAX=2 AMP=1.000mV RMS=1.000mV",
		"A1: MIN=99999999999999999999 MAX=2 AMP=1.000mV RMS=1.000mV", // overflow
	}
	for _, line := range lines {
		assert.NotPanics(t, func() {
			_, ok := d.DecodeLine(line)
			assert.False(t, ok, line)
		})
	}
}

func TestTextFeedCarriesPartialLine(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	samples := d.Feed([]byte("A1: MIN=-5 MAX=5 AMP=1.000mV RMS=0.5"), 1.0)
	assert.Empty(t, samples)

	samples = d.Feed([]byte("00mV\nA3: MIN=0 MAX=1 AMP=2.000mV RMS=1.000mV\nA4"), 2.0)
	require.Len(t, samples, 2)
	assert.Equal(t, 1, samples[0].Channel)
	assert.InDelta(t, 0.5, samples[0].RMSMV, 1e-9)
	assert.Equal(t, 2.0, samples[0].Timestamp)
	assert.Equal(t, 3, samples[1].Channel)

	samples = d.Feed([]byte(": MIN=0 MAX=1 AMP=2.000mV RMS=1.000mV\r\n"), 3.0)
	require.Len(t, samples, 1)
	assert.Equal(t, 4, samples[0].Channel)
	assert.Equal(t, 3.0, samples[0].Timestamp)
}

func TestTextFeedDropsGarbageLines(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	input := "boot v1.2\nA0: MIN=0 MAX=1 AMP=2.000mV RMS=1.000mV\n\xff\xfe\nA7: MIN=0 MAX=1 AMP=2.000mV RMS=1.000mV\n"
	samples := d.Feed([]byte(input), 0.5)
	require.Len(t, samples, 1)
	assert.Equal(t, 0, samples[0].Channel)
}

func TestTextFeedDiscardsOverlongTail(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)

	noise := make([]byte, maxLineLength+1)
	for i := range noise {
		noise[i] = 'x'
	}
	assert.Empty(t, d.Feed(noise, 0))
	assert.Empty(t, d.pending)

	samples := d.Feed([]byte("A5: MIN=0 MAX=1 AMP=2.000mV RMS=1.000mV\n"), 1)
	require.Len(t, samples, 1)
	assert.Equal(t, 5, samples[0].Channel)
}

func TestTextReset(t *testing.T) {
	d := NewTextDecoder(types.ChannelCount)
	d.Feed([]byte("A5: MIN=0 MAX=1"), 0)
	d.Reset()

	samples := d.Feed([]byte(" AMP=2.000mV RMS=1.000mV\n"), 0)
	assert.Empty(t, samples)
}
