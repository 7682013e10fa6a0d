package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/fanmon/fanmon/internal/mask"
)

// UsageError is a command-line problem. The caller prints usage and exits
// without starting the monitor.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return "usage: " + e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// removeDirectives is the flag.Value behind "-e": every occurrence records a
// remove directive, in order.
type removeDirectives struct {
	events *[]string
}

func (r removeDirectives) String() string {
	if r.events == nil {
		return ""
	}
	return strings.Join(*r.events, ",")
}

func (r removeDirectives) Set(name string) error {
	*r.events = append(*r.events, "-"+name)
	return nil
}

// flags holds the values bound by newFlagSet.
type flags struct {
	configPath  string
	logLevel    string
	format      string
	statusAddr  string
	statusKey   string
	bufferSize  int
	strict      bool
	includeSelf bool
	events      []string
}

func newFlagSet(prog string, f *flags) *flag.FlagSet {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.configPath, "config", "", "path to an optional YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	fs.StringVar(&f.format, "format", "", "report format: text or json")
	fs.StringVar(&f.statusAddr, "status-addr", "", "serve /healthz, /stats and /watches on this address")
	fs.StringVar(&f.statusKey, "status-key", "", "PEM RSA public key required for bearer tokens on the status endpoint")
	fs.IntVar(&f.bufferSize, "buffer-size", 0, "fanotify read buffer size in bytes")
	fs.BoolVar(&f.strict, "strict", false, "treat unknown event category names as errors")
	fs.BoolVar(&f.includeSelf, "include-self", false, "report events caused by the monitor itself")
	fs.Var(removeDirectives{events: &f.events}, "e", "remove CATEGORY from the event mask (repeatable)")
	return fs
}

// Usage writes the command synopsis and flag defaults to w.
func Usage(w io.Writer, prog string) {
	fmt.Fprintf(w, "Usage: %s [flags] [-e mask | +e mask]... directory1 [directory2 ...]\n", prog)
	fmt.Fprintf(w, "mask: %s\n", strings.Join(mask.KnownNames(), ", "))
	fmt.Fprintf(w, "\n+e as the first mask directive starts from an empty mask.\n")
	fmt.Fprintf(w, "Flags must come before mask directives and directories; put -- before\n")
	fmt.Fprintf(w, "a directory whose name starts with '-'.\n\nFlags:\n")
	fs := newFlagSet(prog, &flags{})
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// ParseArgs builds the configuration from the command line (without the
// program name):
//
//	[flags] [(+e|-e) CATEGORY]... [--] DIR [DIR...]
//
// Everything after "--" is a directory. Without it, a directory argument
// starting with '-' is rejected as a misplaced flag.
//
// Mask directives from the command line are applied after those from the
// -config file; a "+e" that is the first directive on the command line
// starts from an empty mask and discards the file's directives. Directories
// from both sources are combined. Any problem is returned as *UsageError,
// except flag.ErrHelp which is returned as is.
func ParseArgs(prog string, args []string) (*Config, error) {
	var f flags
	fs := newFlagSet(prog, &f)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &UsageError{Err: err}
	}

	// flag stops at the first "+e"; the remaining directives and the
	// directories are handled here.
	reset := false
	rest := fs.Args()
	terminated := len(rest) < len(args) && args[len(args)-len(rest)-1] == "--"
	i := 0
	for !terminated && i < len(rest) {
		op := rest[i]
		if op != "+e" && op != "-e" {
			break
		}
		if i+1 >= len(rest) {
			return nil, &UsageError{Err: fmt.Errorf("%s needs a category name", op)}
		}
		if op == "+e" {
			if len(f.events) == 0 {
				reset = true
			}
			f.events = append(f.events, "+"+rest[i+1])
		} else {
			f.events = append(f.events, "-"+rest[i+1])
		}
		i += 2
	}
	dirs := rest[i:]
	if !terminated && len(dirs) > 0 && dirs[0] == "--" {
		dirs, terminated = dirs[1:], true
	}
	if !terminated {
		for _, d := range dirs {
			if strings.HasPrefix(d, "-") {
				return nil, &UsageError{Err: fmt.Errorf("flag %q must come before mask directives and directories (use -- for such a directory)", d)}
			}
		}
	}

	cfg := &Config{}
	if f.configPath != "" {
		fileCfg, err := LoadConfig(f.configPath)
		if err != nil {
			return nil, &UsageError{Err: err}
		}
		cfg = fileCfg
	}

	if reset {
		cfg.ResetMask = true
		cfg.Events = nil
	}
	cfg.Events = append(cfg.Events, f.events...)
	cfg.Directories = append(cfg.Directories, dirs...)

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "format":
			cfg.Format = f.format
		case "status-addr":
			cfg.StatusAddr = f.statusAddr
		case "status-key":
			cfg.StatusPublicKey = f.statusKey
		case "buffer-size":
			cfg.BufferSize = f.bufferSize
		case "strict":
			cfg.StrictCategories = f.strict
		case "include-self":
			cfg.IncludeSelf = f.includeSelf
		}
	})

	applyDefaults(cfg)
	if err := validate(cfg, true); err != nil {
		return nil, &UsageError{Err: err}
	}
	return cfg, nil
}
