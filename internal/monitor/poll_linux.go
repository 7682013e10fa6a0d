//go:build linux

package monitor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// wait blocks in poll(2) on the signal and fanotify descriptors with no
// timeout. EINTR is retried. A hang-up counts as readable so the following
// read reports the real condition; an invalid descriptor is an error.
func (m *Monitor) wait() (sigReady, eventsReady bool, err error) {
	pfds := []unix.PollFd{
		{Fd: int32(m.signals.Fd()), Events: unix.POLLIN},
		{Fd: int32(m.notifier.Fd()), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(pfds, -1)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return false, false, err
	}

	for _, p := range pfds {
		if p.Revents&unix.POLLNVAL != 0 {
			return false, false, unix.EBADF
		}
	}
	const readable = unix.POLLIN | unix.POLLHUP | unix.POLLERR
	return pfds[0].Revents&readable != 0, pfds[1].Revents&readable != 0, nil
}

func closeDescriptor(fd int) error {
	return unix.Close(fd)
}
