// Package sigchan turns process signals into a pollable descriptor.
//
// Go delivers signals through os/signal channels rather than a signalfd, so a
// Channel relays each delivered signal as one byte (the signal number) into a
// non-blocking self-pipe. The pipe's read end can be multiplexed with other
// descriptors in poll(2); each Next call yields exactly one signal.
package sigchan

import (
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock is returned by Next when no signal is pending.
	ErrWouldBlock = errors.New("sigchan: no signal pending")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("sigchan: closed")
	// ErrUnsupported is returned by Open on platforms without the linux
	// implementation.
	ErrUnsupported = errors.New("sigchan: not supported on this platform")
)

// SetupError reports that the signal channel could not be created.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("sigchan: setup: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
