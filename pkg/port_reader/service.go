package port_reader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaudrate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// Device name patterns checked by ListPorts.
var portPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyAMA*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

// Open the serial port. Failure here is fatal for capture.
func Open(opts SerialOptions) (*SerialPort, error) {
	if opts.Device == "" {
		return nil, fmt.Errorf("no serial device configured")
	}
	if opts.Baudrate == 0 {
		opts.Baudrate = DefaultBaudrate
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	options := serial.OpenOptions{
		PortName:        opts.Device,
		BaudRate:        opts.Baudrate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 0,
		// Termios VTIME granularity is 100ms.
		InterCharacterTimeout: uint(max(opts.ReadTimeout.Round(100*time.Millisecond), 100*time.Millisecond) / time.Millisecond),
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", opts.Device, err)
	}

	p := &SerialPort{
		device:     opts.Device,
		baudrate:   opts.Baudrate,
		serialPort: port,
		closed:     make(chan struct{}),
	}
	if f, ok := port.(interface{ Fd() uintptr }); ok {
		p.fd, p.hasFd = f.Fd(), true
	}

	log.Info().Str("device", opts.Device).Uint("baudrate", opts.Baudrate).Msg("Connected to serial port")
	return p, nil
}

func (p *SerialPort) Device() string { return p.device }

func (p *SerialPort) Available() (int, error) {
	if p.serialPort == nil {
		return 0, ErrNotConnected
	}
	select {
	case <-p.closed:
		return 0, ErrClosed
	default:
	}
	if !p.hasFd {
		// Unknown: let the bounded read find out.
		return 1, nil
	}
	n, err := bytesAvailable(p.fd)
	if err != nil {
		return 0, fmt.Errorf("query input queue on %s: %w", p.device, err)
	}
	return n, nil
}

func (p *SerialPort) Read(b []byte) (int, error) {
	if p.serialPort == nil {
		return 0, ErrNotConnected
	}
	n, err := p.serialPort.Read(b)
	// A read timeout with nothing received surfaces as EOF on a tty.
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *SerialPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		if p.serialPort != nil {
			err = p.serialPort.Close()
			log.Info().Str("device", p.device).Msg("Disconnected from serial port")
		}
	})
	return err
}

// ListPorts returns candidate serial devices present on this machine.
func ListPorts() []string {
	var ports []string
	for _, pattern := range portPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		ports = append(ports, matches...)
	}
	sort.Strings(ports)
	return ports
}
