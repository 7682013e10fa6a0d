// This file provides a stub Channel for non-Linux platforms. On Linux, the
// real implementation in sigchan_linux.go is compiled instead.
//
//go:build !linux

package sigchan

import (
	"os"
	"syscall"
)

// Channel is the platform stub for non-Linux operating systems.
type Channel struct{}

// Open always returns ErrUnsupported on non-Linux platforms.
func Open(_ ...os.Signal) (*Channel, error) {
	return nil, &SetupError{Err: ErrUnsupported}
}

// Fd returns -1.
func (c *Channel) Fd() int { return -1 }

// Next returns ErrUnsupported.
func (c *Channel) Next() (syscall.Signal, error) { return 0, ErrUnsupported }

// Close is a no-op.
func (c *Channel) Close() error { return nil }
