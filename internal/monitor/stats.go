package monitor

import (
	"log/slog"
	"sync/atomic"
)

// Stats holds the loop counters. Fields are updated by the loop goroutine and
// may be read from any goroutine.
type Stats struct {
	Batches            atomic.Int64
	Records            atomic.Int64
	Reported           atomic.Int64
	SkippedSelf        atomic.Int64
	Overflows          atomic.Int64
	DecodeErrors       atomic.Int64
	UnresolvedPaths    atomic.Int64
	UnresolvedCmdlines atomic.Int64
	ReleasedFDs        atomic.Int64
	Signals            atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Batches            int64 `json:"batches"`
	Records            int64 `json:"records"`
	Reported           int64 `json:"reported"`
	SkippedSelf        int64 `json:"skipped_self"`
	Overflows          int64 `json:"overflows"`
	DecodeErrors       int64 `json:"decode_errors"`
	UnresolvedPaths    int64 `json:"unresolved_paths"`
	UnresolvedCmdlines int64 `json:"unresolved_cmdlines"`
	ReleasedFDs        int64 `json:"released_fds"`
	Signals            int64 `json:"signals"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Batches:            s.Batches.Load(),
		Records:            s.Records.Load(),
		Reported:           s.Reported.Load(),
		SkippedSelf:        s.SkippedSelf.Load(),
		Overflows:          s.Overflows.Load(),
		DecodeErrors:       s.DecodeErrors.Load(),
		UnresolvedPaths:    s.UnresolvedPaths.Load(),
		UnresolvedCmdlines: s.UnresolvedCmdlines.Load(),
		ReleasedFDs:        s.ReleasedFDs.Load(),
		Signals:            s.Signals.Load(),
	}
}

func (s Snapshot) attrs() []any {
	return []any{
		slog.Int64("batches", s.Batches),
		slog.Int64("records", s.Records),
		slog.Int64("reported", s.Reported),
		slog.Int64("skipped_self", s.SkippedSelf),
		slog.Int64("overflows", s.Overflows),
		slog.Int64("decode_errors", s.DecodeErrors),
		slog.Int64("unresolved_paths", s.UnresolvedPaths),
		slog.Int64("unresolved_cmdlines", s.UnresolvedCmdlines),
		slog.Int64("released_fds", s.ReleasedFDs),
		slog.Int64("signals", s.Signals),
	}
}
