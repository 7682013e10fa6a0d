//go:build linux

package sigchan

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Channel owns a self-pipe fed by signal.Notify. Fd and Next are meant for a
// single reader; Close may be called from any goroutine.
type Channel struct {
	// pipeR/pipeW form the self-pipe: the relay goroutine writes one byte per
	// delivered signal to pipeW, which makes pipeR readable.
	pipeR int
	pipeW int

	notify    chan os.Signal
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

// Open starts intercepting sigs. Intercepted signals no longer take their
// default action until Close.
func Open(sigs ...os.Signal) (*Channel, error) {
	if len(sigs) == 0 {
		return nil, &SetupError{Err: errors.New("no signals given")}
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, &SetupError{Err: err}
	}

	c := &Channel{
		pipeR:  fds[0],
		pipeW:  fds[1],
		notify: make(chan os.Signal, 16),
		done:   make(chan struct{}),
	}
	signal.Notify(c.notify, sigs...)

	c.wg.Add(1)
	go c.relay()
	return c, nil
}

// relay copies delivered signals into the pipe until Close.
func (c *Channel) relay() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case s := <-c.notify:
			sig, ok := s.(syscall.Signal)
			if !ok || sig <= 0 || sig > 255 {
				continue
			}
			if !c.deliver(sig) {
				return
			}
		}
	}
}

// deliver writes sig to the pipe. When the pipe is full it waits for the
// reader to make room rather than dropping the signal, which may be the
// termination request. While it waits, os/signal keeps buffering in notify.
// It reports false if the channel was closed first.
func (c *Channel) deliver(sig syscall.Signal) bool {
	b := []byte{byte(sig)}
	pfd := []unix.PollFd{{Fd: int32(c.pipeW), Events: unix.POLLOUT}}
	for {
		_, err := unix.Write(c.pipeW, b)
		switch {
		case err == nil:
			return true
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return true
		}
		select {
		case <-c.done:
			return false
		default:
		}
		_, _ = unix.Poll(pfd, 100)
	}
}

// Fd returns the pollable read end of the pipe.
func (c *Channel) Fd() int { return c.pipeR }

// Next reads exactly one pending signal. It returns ErrWouldBlock when none
// is queued; callers are expected to poll Fd first.
func (c *Channel) Next() (syscall.Signal, error) {
	if c.closed {
		return 0, ErrClosed
	}
	var b [1]byte
	for {
		n, err := unix.Read(c.pipeR, b[:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		return syscall.Signal(b[0]), nil
	}
}

// Close restores default signal handling, stops the relay and releases both
// pipe descriptors. It is idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		signal.Stop(c.notify)
		close(c.done)
		c.wg.Wait()
		c.closed = true
		err = errors.Join(unix.Close(c.pipeR), unix.Close(c.pipeW))
	})
	return err
}
