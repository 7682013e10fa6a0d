// This file provides a stub WatchSet for non-Linux platforms. On Linux, the
// real implementation in watchset_linux.go is compiled instead.
//
//go:build !linux

package fanotify

import (
	"log/slog"

	"github.com/fanmon/fanmon/internal/mask"
)

// Options configures Open.
type Options struct {
	Mask   mask.Mask
	Logger *slog.Logger
}

// WatchSet is the platform stub for non-Linux operating systems.
type WatchSet struct{}

// Open always returns ErrUnsupported on non-Linux platforms.
func Open(_ Options) (*WatchSet, error) {
	return nil, &InitError{Err: ErrUnsupported}
}

// Fd returns -1.
func (w *WatchSet) Fd() int { return -1 }

// Mask returns the empty mask.
func (w *WatchSet) Mask() mask.Mask { return 0 }

// Paths returns nil.
func (w *WatchSet) Paths() []string { return nil }

// Register returns ErrUnsupported.
func (w *WatchSet) Register(path string) error { return &MarkError{Path: path, Err: ErrUnsupported} }

// RegisterAll returns ErrUnsupported.
func (w *WatchSet) RegisterAll(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return w.Register(paths[0])
}

// DeregisterAll is a no-op.
func (w *WatchSet) DeregisterAll() {}

// Read returns ErrUnsupported.
func (w *WatchSet) Read(_ []byte) (int, error) { return 0, ErrUnsupported }

// Close is a no-op.
func (w *WatchSet) Close() error { return nil }
