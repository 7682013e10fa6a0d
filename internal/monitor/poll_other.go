//go:build !linux

package monitor

import "errors"

var errNoPoll = errors.New("monitor: fanotify event loop requires linux")

func (m *Monitor) wait() (bool, bool, error) {
	return false, false, errNoPoll
}

func closeDescriptor(int) error {
	return errNoPoll
}
