package esmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedPointMilli(t *testing.T) {
	assert.InDelta(t, 12.5, FixedPointMilli(12, 500), 1e-9)
	assert.InDelta(t, 8.25, FixedPointMilli(8, 250), 1e-9)
	assert.InDelta(t, 0.001, FixedPointMilli(0, 1), 1e-9)
	// exact, not just close
	assert.Equal(t, 12.345, FixedPointMilli(12, 345))
	assert.Equal(t, 0.3, FixedPointMilli(0, 300))
}

func TestRawToMillivolts(t *testing.T) {
	assert.InDelta(t, 1650.0, RawToMillivolts(16384, 3300, 32768), 1e-9)
	assert.Equal(t, 42.0, RawToMillivolts(42, 0, 32768))
	assert.Equal(t, 42.0, RawToMillivolts(42, 3300, 0))
}

func TestRoundMilli(t *testing.T) {
	assert.Equal(t, 1.235, RoundMilli(1.2345001))
}
