package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/mic_monitor/pkg/capture"
	"github.com/NotCoffee418/mic_monitor/pkg/config"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

type fakeLoop struct {
	stopErr error
	exited  chan struct{}
}

func (f *fakeLoop) Stop() error { return f.stopErr }

func (f *fakeLoop) Wait(ctx context.Context) error {
	select {
	case <-f.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakePort struct {
	closed atomic.Bool
	// Set when Close ran before the loop exited.
	early  atomic.Bool
	exited chan struct{}
}

func (p *fakePort) Close() error {
	select {
	case <-p.exited:
	default:
		p.early.Store(true)
	}
	p.closed.Store(true)
	return nil
}

func TestStopCaptureClosesAfterCleanStop(t *testing.T) {
	exited := make(chan struct{})
	close(exited)
	port := &fakePort{exited: exited}

	require.NoError(t, stopCapture(&fakeLoop{exited: exited}, port, time.Second))
	assert.True(t, port.closed.Load())
	assert.False(t, port.early.Load())
}

func TestStopCaptureWaitsForLateExit(t *testing.T) {
	exited := make(chan struct{})
	loop := &fakeLoop{stopErr: capture.ErrStopTimeout, exited: exited}
	port := &fakePort{exited: exited}

	time.AfterFunc(20*time.Millisecond, func() { close(exited) })
	err := stopCapture(loop, port, time.Second)

	assert.ErrorIs(t, err, capture.ErrStopTimeout)
	assert.True(t, port.closed.Load())
	assert.False(t, port.early.Load(), "port closed while capture was still reading")
}

func TestStopCaptureLeavesPortOpenWhenStuck(t *testing.T) {
	exited := make(chan struct{})
	loop := &fakeLoop{stopErr: capture.ErrStopTimeout, exited: exited}
	port := &fakePort{exited: exited}

	err := stopCapture(loop, port, 10*time.Millisecond)
	assert.True(t, errors.Is(err, capture.ErrStopTimeout))
	assert.False(t, port.closed.Load())
}

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultMonitorConfig()
	require.NoError(t, applyFlags(cfg, "/dev/ttyACM0", 9600, 250, "binary", "0.0.0.0:8000"))
	assert.Equal(t, "/dev/ttyACM0", cfg.SerialDevice)
	assert.Equal(t, uint(9600), cfg.Baudrate)
	assert.Equal(t, 250, cfg.MaxPoints)
	assert.Equal(t, types.ProtocolBinary, cfg.ProtocolType())
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())

	assert.Error(t, applyFlags(cfg, "", 0, 0, "morse", ""))
	assert.Error(t, applyFlags(cfg, "", 0, 0, "", "no-port"))
}
