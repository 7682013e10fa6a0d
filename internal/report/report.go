// Package report renders resolved fanotify events to an output stream.
//
// Two formats are provided. The text format prints a three-line block per
// event, each line stamped with the local time and pid:
//
//	Sun Oct 18 10:42:07 2026 [4242] Event on '/srv/data/report.txt':
//	Sun Oct 18 10:42:07 2026 [4242] Event: FAN_OPEN FAN_CLOSE_WRITE
//	Sun Oct 18 10:42:07 2026 [4242] Cmdline: vim /srv/data/report.txt
//
// The JSON format writes one self-contained object per line. Neither format
// is a stable machine contract beyond carrying the five core fields.
//
// Writers are flushed after every event and are safe for concurrent use.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fanmon/fanmon/internal/mask"
)

// Unknown replaces a path or command line that could not be resolved.
const Unknown = "unknown"

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Event is one resolved fanotify record, ready for output.
type Event struct {
	// Time is when the record was processed.
	Time time.Time
	// PID is the acting process.
	PID int32
	// Path is the file the event refers to, or Unknown.
	Path string
	// Mask holds the event categories reported by the kernel.
	Mask mask.Mask
	// Cmdline is the acting process's argument vector, or Unknown.
	Cmdline string
	// Comm is the short process name. May be empty.
	Comm string
	// UID is the real user ID of the acting process, -1 when unknown.
	UID int
}

// Reporter consumes resolved events.
type Reporter interface {
	Report(ev Event) error
}

// New returns the Reporter for format writing to w.
func New(format string, w io.Writer) (Reporter, error) {
	switch format {
	case FormatText, "":
		return NewText(w), nil
	case FormatJSON:
		return NewJSON(w), nil
	default:
		return nil, fmt.Errorf("report: unknown format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// TextReporter writes the human-readable block format.
type TextReporter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewText returns a TextReporter writing to w.
func NewText(w io.Writer) *TextReporter {
	return &TextReporter{w: bufio.NewWriter(w)}
}

// Report writes ev and flushes.
func (r *TextReporter) Report(ev Event) error {
	ts := ev.Time.Format(time.ANSIC)
	names := strings.Join(ev.Mask.Names(), " ")

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "%s [%d] Event on '%s':\n", ts, ev.PID, orUnknown(ev.Path))
	fmt.Fprintf(r.w, "%s [%d] Event: %s\n", ts, ev.PID, names)
	fmt.Fprintf(r.w, "%s [%d] Cmdline: %s\n\n", ts, ev.PID, orUnknown(ev.Cmdline))
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// line is the wire format for one JSON report line.
type line struct {
	Timestamp time.Time `json:"ts"`
	PID       int32     `json:"pid"`
	Path      string    `json:"path"`
	Events    []string  `json:"events"`
	Cmdline   string    `json:"cmdline"`
	Comm      string    `json:"comm,omitempty"`
	UID       *int      `json:"uid,omitempty"`
}

// JSONReporter writes one JSON object per event.
type JSONReporter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewJSON returns a JSONReporter writing to w.
func NewJSON(w io.Writer) *JSONReporter {
	return &JSONReporter{w: bufio.NewWriter(w)}
}

// Report writes ev as a single line and flushes.
func (r *JSONReporter) Report(ev Event) error {
	l := line{
		Timestamp: ev.Time,
		PID:       ev.PID,
		Path:      orUnknown(ev.Path),
		Events:    ev.Mask.Names(),
		Cmdline:   orUnknown(ev.Cmdline),
		Comm:      ev.Comm,
	}
	if ev.UID >= 0 {
		uid := ev.UID
		l.UID = &uid
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	// Append newline so each event is a self-contained JSON line.
	raw = append(raw, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(raw); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
