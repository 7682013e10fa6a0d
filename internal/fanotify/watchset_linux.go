//go:build linux

package fanotify

import (
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/fanmon/fanmon/internal/mask"
)

// initFlags selects a notification-only group (no permission decisions)
// with a non-blocking, close-on-exec descriptor.
const initFlags = unix.FAN_CLASS_NOTIF | unix.FAN_CLOEXEC | unix.FAN_NONBLOCK

// eventFlags are the open(2) flags of the descriptors the kernel places in
// each event record.
const eventFlags = unix.O_RDONLY | unix.O_CLOEXEC | unix.O_LARGEFILE

// syscalls is the kernel surface used by WatchSet. Tests replace it.
type syscalls struct {
	init  func(flags, eventFlags uint) (int, error)
	mark  func(fd int, flags uint, mask uint64, dirFd int, path string) error
	read  func(fd int, p []byte) (int, error)
	close func(fd int) error
}

var kernel = syscalls{
	init:  unix.FanotifyInit,
	mark:  unix.FanotifyMark,
	read:  unix.Read,
	close: unix.Close,
}

// Options configures Open.
type Options struct {
	// Mask is the subscription used for every mark in the set.
	Mask mask.Mask
	// Logger receives registration and teardown messages. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// WatchSet is the fanotify descriptor plus the ordered list of marked
// directories. It is not safe for concurrent mutation; Paths and Mask may be
// read concurrently.
type WatchSet struct {
	sys    syscalls
	mask   mask.Mask
	logger *slog.Logger

	fd     int
	closed bool

	mu    sync.RWMutex
	paths []string
}

// Open creates the fanotify group. It requires CAP_SYS_ADMIN; failure is
// returned as *InitError.
func Open(opts Options) (*WatchSet, error) {
	return open(kernel, opts)
}

func open(sys syscalls, opts Options) (*WatchSet, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fd, err := sys.init(initFlags, eventFlags)
	if err != nil {
		if errors.Is(err, unix.EPERM) {
			logger.Debug("fanotify: init needs CAP_SYS_ADMIN")
		}
		return nil, &InitError{Err: err}
	}
	logger.Debug("fanotify: initialised", slog.Int("fd", fd), slog.String("mask", opts.Mask.String()))
	return &WatchSet{
		sys:    sys,
		mask:   opts.Mask,
		logger: logger,
		fd:     fd,
	}, nil
}

// Fd returns the pollable fanotify descriptor.
func (w *WatchSet) Fd() int { return w.fd }

// Mask returns the subscription used for every mark.
func (w *WatchSet) Mask() mask.Mask { return w.mask }

// Paths returns a copy of the registered paths in registration order.
func (w *WatchSet) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.paths...)
}

// Register marks path with the set's mask. Failure is returned as
// *MarkError; paths registered earlier are left in place.
func (w *WatchSet) Register(path string) error {
	if w.closed {
		return ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.paths {
		if p == path {
			return &MarkError{Path: path, Err: ErrDuplicate}
		}
	}
	if err := w.sys.mark(w.fd, unix.FAN_MARK_ADD, uint64(w.mask), unix.AT_FDCWD, path); err != nil {
		return &MarkError{Path: path, Err: err}
	}
	w.paths = append(w.paths, path)
	w.logger.Info("fanotify: started monitoring", slog.String("path", path))
	return nil
}

// RegisterAll marks every path in order. On the first failure the marks
// added by this call are removed again before the *MarkError is returned, so
// a failed setup leaves the set as it found it.
func (w *WatchSet) RegisterAll(paths []string) error {
	var added []string
	for _, p := range paths {
		if err := w.Register(p); err != nil {
			for _, a := range added {
				w.unmark(a)
			}
			w.forget(added)
			return err
		}
		added = append(added, p)
	}
	return nil
}

// DeregisterAll removes every mark, using the mask it was added with.
// Individual failures are logged and otherwise ignored. The path list is
// always cleared. Calling it again is a no-op.
func (w *WatchSet) DeregisterAll() {
	w.mu.Lock()
	paths := w.paths
	w.paths = nil
	w.mu.Unlock()

	if w.closed {
		return
	}
	for _, p := range paths {
		w.unmark(p)
	}
}

// Read performs one read of queued event records into buf. ErrWouldBlock is
// returned when the queue is empty.
func (w *WatchSet) Read(buf []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	for {
		n, err := w.sys.read(w.fd, buf)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Close releases the fanotify descriptor. Call it once, after
// DeregisterAll; later calls return ErrClosed.
func (w *WatchSet) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	return w.sys.close(w.fd)
}

func (w *WatchSet) unmark(path string) {
	if err := w.sys.mark(w.fd, unix.FAN_MARK_REMOVE, uint64(w.mask), unix.AT_FDCWD, path); err != nil {
		w.logger.Warn("fanotify: cannot remove mark",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}
	w.logger.Debug("fanotify: stopped monitoring", slog.String("path", path))
}

// forget drops drop from the registered list.
func (w *WatchSet) forget(drop []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.paths[:0]
	for _, p := range w.paths {
		found := false
		for _, d := range drop {
			if p == d {
				found = true
				break
			}
		}
		if !found {
			kept = append(kept, p)
		}
	}
	w.paths = kept
}
