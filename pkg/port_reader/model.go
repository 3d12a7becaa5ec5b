package port_reader

import (
	"errors"
	"io"
	"sync"
	"time"
)

var (
	ErrNotConnected = errors.New("serial port not connected")
	ErrClosed       = errors.New("serial port closed")
)

// Transport is the byte source the capture loop drains.
type Transport interface {
	// Available reports bytes that can be read without waiting.
	Available() (int, error)
	// Read blocks at most for the port's read timeout.
	Read(p []byte) (int, error)
	Close() error
}

var _ Transport = (*SerialPort)(nil)

type SerialOptions struct {
	Device      string
	Baudrate    uint
	ReadTimeout time.Duration
}

type SerialPort struct {
	device     string
	baudrate   uint
	serialPort io.ReadWriteCloser
	fd         uintptr
	hasFd      bool

	closeOnce sync.Once
	closed    chan struct{}
}
