package scrape

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr sets SO_REUSEADDR on the listening socket before bind, the
// Go equivalent of the source's setsockopt(SO_REUSEADDR) call guarding
// against "Address already in use" on a quick restart.
func setReuseAddr(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
