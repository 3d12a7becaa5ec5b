package port_reader

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPort struct {
	reads  [][]byte
	errs   []error
	closes int
}

func (s *scriptedPort) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.reads[0])
	s.reads = s.reads[1:]
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	return n, err
}

func (s *scriptedPort) Write(p []byte) (int, error) { return len(p), nil }
func (s *scriptedPort) Close() error               { s.closes++; return nil }

func newTestPort(raw io.ReadWriteCloser) *SerialPort {
	return &SerialPort{device: "test", serialPort: raw, closed: make(chan struct{})}
}

func TestOpenRequiresDevice(t *testing.T) {
	_, err := Open(SerialOptions{})
	assert.Error(t, err)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(SerialOptions{Device: "/dev/does-not-exist-mic-monitor"})
	assert.Error(t, err)
}

func TestReadTimeoutIsNotAnError(t *testing.T) {
	raw := &scriptedPort{reads: [][]byte{[]byte("A0"), nil}}
	p := newTestPort(raw)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("A0"), buf[:n])

	n, err = p.Read(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadPassesThroughFaults(t *testing.T) {
	raw := &scriptedPort{reads: [][]byte{nil}, errs: []error{io.ErrUnexpectedEOF}}
	p := newTestPort(raw)

	_, err := p.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestAvailableWithoutFd(t *testing.T) {
	p := newTestPort(&scriptedPort{})
	n, err := p.Available()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCloseIsIdempotent(t *testing.T) {
	raw := &scriptedPort{}
	p := newTestPort(raw)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, raw.closes)

	_, err := p.Available()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNotConnected(t *testing.T) {
	p := &SerialPort{closed: make(chan struct{})}
	_, err := p.Available()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestListPortsSorted(t *testing.T) {
	ports := ListPorts()
	for i := 1; i < len(ports); i++ {
		assert.True(t, ports[i-1] <= ports[i])
	}
}
