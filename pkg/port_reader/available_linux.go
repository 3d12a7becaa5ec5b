//go:build linux

package port_reader

import "golang.org/x/sys/unix"

func bytesAvailable(fd uintptr) (int, error) {
	return unix.IoctlGetInt(int(fd), unix.TIOCINQ)
}
