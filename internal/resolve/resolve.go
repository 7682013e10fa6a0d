// Package resolve turns the raw identifiers carried by a fanotify record (an
// event descriptor and a pid) into human-readable metadata using procfs.
//
// Every lookup races against process exit and descriptor churn, so failure is
// an expected outcome: methods report a miss with ok == false and never
// return errors. The resolver never closes the descriptors it inspects.
package resolve

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultProcRoot is the procfs mount point.
	DefaultProcRoot = "/proc"
	// DefaultMaxCmdline bounds a single cmdline read (PATH_MAX).
	DefaultMaxCmdline = 4096
)

// Resolver reads process and descriptor metadata from a procfs tree. The
// zero value is not usable; use New.
type Resolver struct {
	// ProcRoot is the procfs mount point. Tests point it at a fake tree.
	ProcRoot string
	// MaxCmdline caps the number of cmdline bytes read per lookup.
	MaxCmdline int
}

// New returns a Resolver rooted at /proc.
func New() *Resolver {
	return &Resolver{ProcRoot: DefaultProcRoot, MaxCmdline: DefaultMaxCmdline}
}

// Path resolves fd, a descriptor open in this process, to the path it
// refers to via <proc>/self/fd/<fd>. A deleted file resolves to the
// kernel's "<path> (deleted)" text.
func (r *Resolver) Path(fd int32) (string, bool) {
	if fd < 0 {
		return "", false
	}
	link := filepath.Join(r.ProcRoot, "self", "fd", strconv.FormatInt(int64(fd), 10))
	path, err := os.Readlink(link)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// Cmdline returns the argument vector of pid joined by spaces. Kernel
// threads and zombies have an empty cmdline and report a miss.
func (r *Resolver) Cmdline(pid int32) (string, bool) {
	raw, ok := r.readBounded(pid, "cmdline", r.maxCmdline())
	if !ok {
		return "", false
	}
	// NUL separators between argv entries → spaces, then trim.
	s := strings.TrimRight(string(bytes.ReplaceAll(raw, []byte{0}, []byte{' '})), " ")
	if s == "" {
		return "", false
	}
	return s, true
}

// Comm returns the short command name from <proc>/<pid>/comm.
func (r *Resolver) Comm(pid int32) (string, bool) {
	raw, ok := r.readBounded(pid, "comm", 64)
	if !ok {
		return "", false
	}
	s := strings.TrimRight(string(raw), "\n")
	if s == "" {
		return "", false
	}
	return s, true
}

// UID returns the real user ID of pid from the "Uid:" line of
// <proc>/<pid>/status.
func (r *Resolver) UID(pid int32) (int, bool) {
	if pid <= 0 {
		return 0, false
	}
	f, err := os.Open(r.procPath(pid, "status"))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		// Format: "Uid:\treal\teffective\tsaved\tfs"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		uid, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, false
		}
		return uid, true
	}
	return 0, false
}

// readBounded reads at most limit bytes of <proc>/<pid>/<name>.
func (r *Resolver) readBounded(pid int32, name string, limit int) ([]byte, bool) {
	if pid <= 0 {
		return nil, false
	}
	f, err := os.Open(r.procPath(pid, name))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (r *Resolver) procPath(pid int32, name string) string {
	return filepath.Join(r.ProcRoot, strconv.FormatInt(int64(pid), 10), name)
}

func (r *Resolver) maxCmdline() int {
	if r.MaxCmdline <= 0 {
		return DefaultMaxCmdline
	}
	return r.MaxCmdline
}
