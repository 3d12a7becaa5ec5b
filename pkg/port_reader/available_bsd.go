//go:build darwin || freebsd

package port_reader

import "golang.org/x/sys/unix"

func bytesAvailable(fd uintptr) (int, error) {
	return unix.IoctlGetInt(int(fd), unix.FIONREAD)
}
