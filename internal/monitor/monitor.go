// Package monitor contains the event loop that multiplexes the signal
// channel with the fanotify descriptor, decodes event batches, resolves
// per-event metadata and hands each event to the reporter.
//
// The loop is single threaded: one goroutine blocks in poll(2) on both
// descriptors with no timeout, and every batch is fully processed before the
// next wait. A termination signal is an ordinary in-band message observed at
// the next wait return.
//
// Lifecycle:
//
//	Initializing → Running → ShuttingDown → Terminated
//
// Errors reading either descriptor are fatal: Run returns a *FatalError
// immediately without tearing down the watch set, and the caller is expected
// to exit.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fanmon/fanmon/internal/config"
	"github.com/fanmon/fanmon/internal/decoder"
	"github.com/fanmon/fanmon/internal/fanotify"
	"github.com/fanmon/fanmon/internal/mask"
	"github.com/fanmon/fanmon/internal/report"
	"github.com/fanmon/fanmon/internal/resolve"
	"github.com/fanmon/fanmon/internal/sigchan"
)

// State is a lifecycle phase of the Monitor.
type State int32

const (
	Initializing State = iota
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Running:
		return "Running"
	case ShuttingDown:
		return "ShuttingDown"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Notifier is the fanotify side of the loop. *fanotify.WatchSet implements it.
type Notifier interface {
	Fd() int
	// Read returns fanotify.ErrWouldBlock when no events are queued.
	Read(buf []byte) (int, error)
	Paths() []string
	Mask() mask.Mask
	DeregisterAll()
	Close() error
}

// SignalSource is the signal side of the loop. *sigchan.Channel implements it.
type SignalSource interface {
	Fd() int
	// Next returns sigchan.ErrWouldBlock when no signal is pending.
	Next() (syscall.Signal, error)
	Close() error
}

// Resolver looks up event metadata. *resolve.Resolver implements it.
type Resolver interface {
	Path(fd int32) (string, bool)
	Cmdline(pid int32) (string, bool)
	Comm(pid int32) (string, bool)
	UID(pid int32) (int, bool)
}

// Signals handled by the monitor. SIGINT and SIGTERM stop it, SIGUSR1 logs
// the counters, and SIGHUP is intercepted so that closing the controlling
// terminal does not kill an ad-hoc session.
var (
	terminationSignals = []syscall.Signal{syscall.SIGINT, syscall.SIGTERM}
	statsSignal        = syscall.SIGUSR1
	interceptedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1}
)

// FatalError is a descriptor-level failure during Running.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("monitor: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Monitor drives the event loop. Create it with Start (real descriptors) or
// New (injected ones), then call Run once.
type Monitor struct {
	notifier Notifier
	signals  SignalSource
	resolver Resolver
	reporter report.Reporter
	logger   *slog.Logger

	closeFD     func(fd int) error
	now         func() time.Time
	selfPID     int32
	includeSelf bool
	bufSize     int

	state   atomic.Int32
	stats   Stats
	started atomic.Int64 // unix nanoseconds

	versionWarned atomic.Bool
}

// Option is a functional option for Monitor construction.
type Option func(*Monitor)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReporter sets the event sink. The default writes text to stdout.
func WithReporter(r report.Reporter) Option {
	return func(m *Monitor) { m.reporter = r }
}

// WithResolver replaces the procfs resolver.
func WithResolver(r Resolver) Option {
	return func(m *Monitor) { m.resolver = r }
}

// WithBufferSize sets the size of the fanotify read buffer.
func WithBufferSize(n int) Option {
	return func(m *Monitor) {
		if n >= decoder.HeaderSize {
			m.bufSize = n
		}
	}
}

// WithIncludeSelf keeps events whose pid is the monitor's own.
func WithIncludeSelf(include bool) Option {
	return func(m *Monitor) { m.includeSelf = include }
}

// WithCloseFunc replaces the function that releases event descriptors.
func WithCloseFunc(fn func(fd int) error) Option {
	return func(m *Monitor) { m.closeFD = fn }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func newMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		resolver: resolve.New(),
		reporter: report.NewText(os.Stdout),
		logger:   slog.Default(),
		closeFD:  closeDescriptor,
		now:      time.Now,
		selfPID:  int32(os.Getpid()),
		bufSize:  config.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(Initializing))
	return m
}

// New wraps already-open descriptors. The Monitor takes ownership of both and
// releases them during shutdown.
func New(n Notifier, s SignalSource, opts ...Option) *Monitor {
	m := newMonitor(opts...)
	m.notifier = n
	m.signals = s
	return m
}

// Start performs initialisation from cfg: it opens the signal channel, then
// the fanotify group, and marks every configured directory. Setup failures
// (*sigchan.SetupError, *fanotify.InitError, *fanotify.MarkError) are
// returned after releasing whatever was already acquired.
func Start(cfg *config.Config, opts ...Option) (*Monitor, error) {
	base := []Option{WithBufferSize(cfg.BufferSize), WithIncludeSelf(cfg.IncludeSelf)}
	m := newMonitor(append(base, opts...)...)

	subscription, skipped, err := cfg.Mask()
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	for _, name := range skipped {
		m.logger.Debug("monitor: ignoring unknown event category", slog.String("directive", name))
	}
	m.logger.Debug("monitor: event mask", slog.String("mask", subscription.String()))

	sigs, err := sigchan.Open(interceptedSignals...)
	if err != nil {
		return nil, err
	}

	ws, err := fanotify.Open(fanotify.Options{Mask: subscription, Logger: m.logger})
	if err != nil {
		_ = sigs.Close()
		return nil, err
	}
	if err := ws.RegisterAll(cfg.Directories); err != nil {
		_ = ws.Close()
		_ = sigs.Close()
		return nil, err
	}

	m.notifier = ws
	m.signals = sigs
	return m, nil
}

// State returns the current lifecycle phase. Safe for concurrent use.
func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	m.logger.Debug("monitor: state change", slog.String("state", s.String()))
}

// Stats returns the live counters. Safe for concurrent use.
func (m *Monitor) Stats() *Stats { return &m.stats }

// Paths returns the watched directories.
func (m *Monitor) Paths() []string { return m.notifier.Paths() }

// Mask returns the subscription mask.
func (m *Monitor) Mask() mask.Mask { return m.notifier.Mask() }

// Uptime is the time since Run was entered, or zero before that.
func (m *Monitor) Uptime() time.Duration {
	start := m.started.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// Run blocks until a termination signal has been handled (returns nil) or a
// descriptor error occurs (returns *FatalError, no teardown).
func (m *Monitor) Run() error {
	m.started.Store(time.Now().UnixNano())
	m.setState(Running)
	buf := make([]byte, m.bufSize)

	for {
		sigReady, eventsReady, err := m.wait()
		if err != nil {
			return &FatalError{Op: "poll", Err: err}
		}

		if sigReady {
			stop, err := m.handleSignal()
			if err != nil {
				return &FatalError{Op: "read signal", Err: err}
			}
			if stop {
				m.shutdown()
				return nil
			}
		}

		if eventsReady {
			if err := m.readBatch(buf); err != nil {
				return &FatalError{Op: "read events", Err: err}
			}
		}
	}
}

// handleSignal consumes one signal and reports whether it requests shutdown.
func (m *Monitor) handleSignal() (bool, error) {
	sig, err := m.signals.Next()
	if err != nil {
		if errors.Is(err, sigchan.ErrWouldBlock) {
			return false, nil
		}
		return false, err
	}
	m.stats.Signals.Add(1)

	for _, t := range terminationSignals {
		if sig == t {
			m.logger.Info("monitor: received shutdown signal", slog.String("signal", sig.String()))
			return true, nil
		}
	}
	if sig == statsSignal {
		m.logger.Info("monitor: counters", m.stats.Snapshot().attrs()...)
		return false, nil
	}
	m.logger.Warn("monitor: received unexpected signal", slog.String("signal", sig.String()))
	return false, nil
}

// readBatch performs one bounded read and handles every record in it.
// A malformed record ends the batch; it is not an error.
func (m *Monitor) readBatch(buf []byte) error {
	n, err := m.notifier.Read(buf)
	if err != nil {
		if errors.Is(err, fanotify.ErrWouldBlock) {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}
	m.stats.Batches.Add(1)

	d := decoder.New(buf[:n])
	for d.Next() {
		m.handle(d.Record())
	}
	if err := d.Err(); err != nil {
		m.stats.DecodeErrors.Add(1)
		m.logger.Warn("monitor: discarding remainder of event batch",
			slog.Int("bytes", n),
			slog.Int("offset", d.Offset()),
			slog.Any("error", err))
	}
	return nil
}

// handle resolves and reports one record. It is the only place a record's
// descriptor is released, and it releases it on every path.
func (m *Monitor) handle(rec decoder.Record) {
	efd := m.own(rec.FD)
	defer efd.release()

	m.stats.Records.Add(1)

	if rec.Version != decoder.MetadataVersion && m.versionWarned.CompareAndSwap(false, true) {
		m.logger.Warn("monitor: kernel reports an unexpected metadata version",
			slog.Int("version", int(rec.Version)),
			slog.Int("want", decoder.MetadataVersion))
	}
	if rec.Mask.Has(mask.Overflow) {
		m.stats.Overflows.Add(1)
		m.logger.Warn("monitor: kernel event queue overflowed; some events were lost")
		return
	}
	if !m.includeSelf && rec.PID == m.selfPID {
		m.stats.SkippedSelf.Add(1)
		return
	}

	ev := m.resolve(rec.PID, rec.Mask, efd.fd)
	if err := m.reporter.Report(ev); err != nil {
		m.logger.Warn("monitor: cannot write report", slog.Any("error", err))
		return
	}
	m.stats.Reported.Add(1)
}

// resolve builds the report event. Lookups that fail degrade to
// report.Unknown.
func (m *Monitor) resolve(pid int32, mk mask.Mask, fd int32) report.Event {
	ev := report.Event{
		Time: m.now(),
		PID:  pid,
		Mask: mk,
		UID:  -1,
	}

	if path, ok := m.resolver.Path(fd); ok {
		ev.Path = path
	} else {
		ev.Path = report.Unknown
		m.stats.UnresolvedPaths.Add(1)
	}
	if cmd, ok := m.resolver.Cmdline(pid); ok {
		ev.Cmdline = cmd
	} else {
		ev.Cmdline = report.Unknown
		m.stats.UnresolvedCmdlines.Add(1)
	}
	if comm, ok := m.resolver.Comm(pid); ok {
		ev.Comm = comm
	}
	if uid, ok := m.resolver.UID(pid); ok {
		ev.UID = uid
	}

	if m.logger.Enabled(context.Background(), slog.LevelDebug) {
		m.logger.Debug("monitor: event",
			slog.Int("pid", int(pid)),
			slog.String("path", ev.Path),
			slog.String("mask", mk.String()))
	}
	return ev
}

// shutdown removes every mark and releases both descriptors.
func (m *Monitor) shutdown() {
	m.setState(ShuttingDown)

	m.notifier.DeregisterAll()
	if err := m.notifier.Close(); err != nil {
		m.logger.Warn("monitor: closing fanotify descriptor", slog.Any("error", err))
	}
	if err := m.signals.Close(); err != nil {
		m.logger.Warn("monitor: closing signal channel", slog.Any("error", err))
	}

	m.setState(Terminated)
	m.logger.Info("monitor: stopped", m.stats.Snapshot().attrs()...)
}

// eventFD is the single owner of a record's descriptor. release hands the
// descriptor back to the kernel and clears the slot, so a second call is a
// no-op.
type eventFD struct {
	m  *Monitor
	fd int32
}

func (m *Monitor) own(fd int32) *eventFD {
	return &eventFD{m: m, fd: fd}
}

func (e *eventFD) release() {
	if e.fd < 0 {
		return
	}
	fd := e.fd
	e.fd = decoder.NoFD
	e.m.stats.ReleasedFDs.Add(1)
	if err := e.m.closeFD(int(fd)); err != nil {
		e.m.logger.Warn("monitor: cannot close event descriptor",
			slog.Int("fd", int(fd)),
			slog.Any("error", err))
	}
}
