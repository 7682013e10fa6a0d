// Package fanotify owns the fanotify notification descriptor and the set of
// directories marked on it.
//
// A WatchSet is created once with Open, populated with RegisterAll, torn down
// with DeregisterAll and finally released with Close. Every path is marked
// and unmarked with the same mask, because the kernel qualifies mark removal
// by mask.
package fanotify

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by Open on platforms without fanotify.
	ErrUnsupported = errors.New("fanotify: not supported on this platform")
	// ErrClosed is returned when the WatchSet has already been closed.
	ErrClosed = errors.New("fanotify: watch set closed")
	// ErrDuplicate is returned when a path is registered twice.
	ErrDuplicate = errors.New("fanotify: path already registered")
	// ErrWouldBlock is returned by Read when no events are queued.
	ErrWouldBlock = errors.New("fanotify: no events pending")
)

// InitError reports that the notification channel could not be created.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("fanotify: init: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// MarkError reports that a directory could not be marked.
type MarkError struct {
	Path string
	Err  error
}

func (e *MarkError) Error() string {
	return fmt.Sprintf("fanotify: cannot add mark on %q: %v", e.Path, e.Err)
}

func (e *MarkError) Unwrap() error { return e.Err }
