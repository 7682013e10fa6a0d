package config_test

import (
	"errors"
	"flag"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/fanmon/fanmon/internal/config"
	"github.com/fanmon/fanmon/internal/mask"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func mustParse(t *testing.T, args ...string) *config.Config {
	t.Helper()
	cfg, err := config.ParseArgs("fanmon", args)
	if err != nil {
		t.Fatalf("ParseArgs(%q): %v", args, err)
	}
	return cfg
}

func mustMask(t *testing.T, cfg *config.Config) mask.Mask {
	t.Helper()
	m, _, err := cfg.Mask()
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	return m
}

func isUsageError(err error) bool {
	var ue *config.UsageError
	return errors.As(err, &ue)
}

const validYAML = `
directories:
  - /srv/data
  - /var/tmp
events:
  - -ACCESS
  - +fan_open
log_level: debug
format: json
status_addr: "127.0.0.1:9100"
buffer_size: 16384
`

// ---------------------------------------------------------------------------
// YAML
// ---------------------------------------------------------------------------

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := config.LoadConfig(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Directories, []string{"/srv/data", "/var/tmp"}) {
		t.Errorf("Directories = %v", cfg.Directories)
	}
	if cfg.LogLevel != "debug" || cfg.Format != "json" || cfg.StatusAddr != "127.0.0.1:9100" || cfg.BufferSize != 16384 {
		t.Errorf("cfg = %+v", cfg)
	}
	if got, want := mustMask(t, cfg), mask.Base()&^mask.Mask(mask.Access); got != want {
		t.Errorf("Mask() = %v, want %v", got, want)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeTemp(t, "directories: [/tmp]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.Format != "text" || cfg.BufferSize != config.DefaultBufferSize {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if mustMask(t, cfg) != mask.Base() {
		t.Error("default mask must be Base()")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"log level":   "log_level: verbose\n",
		"format":      "format: xml\n",
		"buffer size": "buffer_size: 100\n",
		"strict":      "strict_categories: true\nevents: [+BOGUS]\n",
		"empty dir":   "directories: ['']\n",
	}
	for name, yml := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := config.LoadConfig(writeTemp(t, yml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := config.LoadConfig("/nonexistent/fanmon.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := config.LoadConfig(writeTemp(t, "directories: [unclosed\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

// ---------------------------------------------------------------------------
// Command line
// ---------------------------------------------------------------------------

func TestParseArgs_DirectoriesOnly(t *testing.T) {
	cfg := mustParse(t, "/srv/a", "/srv/b")
	if !reflect.DeepEqual(cfg.Directories, []string{"/srv/a", "/srv/b"}) {
		t.Errorf("Directories = %v", cfg.Directories)
	}
	if mustMask(t, cfg) != mask.Base() {
		t.Error("mask must default to Base()")
	}
}

func TestParseArgs_PlusEFirstResets(t *testing.T) {
	cfg := mustParse(t, "+e", "OPEN", "/srv/a")
	if got := mustMask(t, cfg); got != mask.Mask(mask.Open) {
		t.Fatalf("mask = %v, want FAN_OPEN only", got)
	}
	if !reflect.DeepEqual(cfg.Directories, []string{"/srv/a"}) {
		t.Errorf("Directories = %v", cfg.Directories)
	}
}

func TestParseArgs_MixedDirectivesInOrder(t *testing.T) {
	// -e first: no reset; then +e re-adds a removed bit.
	cfg := mustParse(t, "-e", "ACCESS", "-e", "OPEN", "+e", "FAN_OPEN", "-e", "modify", "/srv/a")
	want := mask.Base() &^ mask.Mask(mask.Access) &^ mask.Mask(mask.Modify)
	if got := mustMask(t, cfg); got != want {
		t.Fatalf("mask = %v, want %v", got, want)
	}
	if cfg.ResetMask {
		t.Error("+e after -e must not reset")
	}
}

func TestParseArgs_UnknownCategorySkipped(t *testing.T) {
	cfg := mustParse(t, "+e", "OPEN", "+e", "BOGUS", "/srv/a")
	m, skipped, err := cfg.Mask()
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if m != mask.Mask(mask.Open) || len(skipped) != 1 || skipped[0] != "+BOGUS" {
		t.Fatalf("Mask() = %v, %v", m, skipped)
	}
}

func TestParseArgs_StrictRejectsUnknown(t *testing.T) {
	_, err := config.ParseArgs("fanmon", []string{"-strict", "+e", "BOGUS", "/srv/a"})
	if !isUsageError(err) {
		t.Fatalf("err = %v, want *UsageError", err)
	}
}

func TestParseArgs_UsageErrors(t *testing.T) {
	tests := map[string][]string{
		"no args":            {},
		"directive only":     {"+e", "OPEN"},
		"dangling directive": {"+e"},
		"dangling flag":      {"-e"},
		"unknown flag":       {"-x", "/srv/a"},
		"bad format":         {"-format", "xml", "/srv/a"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseArgs("fanmon", args)
			if !isUsageError(err) {
				t.Fatalf("err = %v, want *UsageError", err)
			}
		})
	}
}

func TestParseArgs_Help(t *testing.T) {
	_, err := config.ParseArgs("fanmon", []string{"-h"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}
}

func TestParseArgs_FlagsOverrideFile(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg := mustParse(t, "-config", path, "-format", "text", "-log-level", "warn", "-e", "OPEN", "/srv/extra")

	if cfg.Format != "text" || cfg.LogLevel != "warn" {
		t.Errorf("flags did not override file: %+v", cfg)
	}
	if cfg.StatusAddr != "127.0.0.1:9100" {
		t.Errorf("unset flag clobbered file value: %q", cfg.StatusAddr)
	}
	if !reflect.DeepEqual(cfg.Directories, []string{"/srv/data", "/var/tmp", "/srv/extra"}) {
		t.Errorf("Directories = %v", cfg.Directories)
	}
	// File: -ACCESS +OPEN; CLI: -OPEN.
	want := mask.Base() &^ mask.Mask(mask.Access) &^ mask.Mask(mask.Open)
	if got := mustMask(t, cfg); got != want {
		t.Errorf("mask = %v, want %v", got, want)
	}
}

func TestParseArgs_StatusKey(t *testing.T) {
	cfg := mustParse(t, "-status-addr", "127.0.0.1:9100", "-status-key", "/etc/fanmon/status.pem", "/srv/a")
	if cfg.StatusPublicKey != "/etc/fanmon/status.pem" {
		t.Errorf("StatusPublicKey = %q", cfg.StatusPublicKey)
	}
	if _, err := config.ParseArgs("fanmon", []string{"-status-key", "/k.pem", "/srv/a"}); !isUsageError(err) {
		t.Errorf("key without address: err = %v, want *UsageError", err)
	}
}

func TestParseArgs_StatusKeyFromFileAddrFromFlag(t *testing.T) {
	path := writeTemp(t, "status_public_key: /etc/fanmon/status.pem\n")
	cfg := mustParse(t, "-config", path, "-status-addr", "127.0.0.1:9100", "/srv/a")
	if cfg.StatusPublicKey != "/etc/fanmon/status.pem" || cfg.StatusAddr != "127.0.0.1:9100" {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := config.ParseArgs("fanmon", []string{"-config", path, "/srv/a"}); !isUsageError(err) {
		t.Errorf("key without address: err = %v, want *UsageError", err)
	}
}

func TestParseArgs_InvalidFileIsUsageError(t *testing.T) {
	path := writeTemp(t, "format: xml\n")
	if _, err := config.ParseArgs("fanmon", []string{"-config", path, "/srv/a"}); !isUsageError(err) {
		t.Fatalf("err = %v, want *UsageError", err)
	}
}

func TestParseArgs_DashDirectories(t *testing.T) {
	tests := map[string]struct {
		args []string
		want []string
	}{
		"after flags":      {[]string{"--", "-mydir", "/srv/a"}, []string{"-mydir", "/srv/a"}},
		"after directives": {[]string{"+e", "OPEN", "--", "-mydir"}, []string{"-mydir"}},
		"directive names":  {[]string{"--", "+e", "-e"}, []string{"+e", "-e"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := mustParse(t, tc.args...)
			if !reflect.DeepEqual(cfg.Directories, tc.want) {
				t.Errorf("Directories = %q, want %q", cfg.Directories, tc.want)
			}
		})
	}
	if cfg := mustParse(t, "+e", "OPEN", "--", "-mydir"); mustMask(t, cfg) != mask.Mask(mask.Open) {
		t.Error("directives before -- must still apply")
	}
}

func TestParseArgs_MisplacedFlagRejected(t *testing.T) {
	for _, args := range [][]string{
		{"+e", "OPEN", "-strict", "/tmp"},
		{"/tmp", "-format", "json"},
		{"-mydir"},
	} {
		if _, err := config.ParseArgs("fanmon", args); !isUsageError(err) {
			t.Errorf("ParseArgs(%q) err = %v, want *UsageError", args, err)
		}
	}
}

func TestParseArgs_ResetDiscardsFileDirectives(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg := mustParse(t, "-config", path, "+e", "MODIFY")
	if got := mustMask(t, cfg); got != mask.Mask(mask.Modify) {
		t.Errorf("mask = %v, want FAN_MODIFY only", got)
	}
}

func TestUsage_ListsCategories(t *testing.T) {
	var sb strings.Builder
	config.Usage(&sb, "fanmon")
	out := sb.String()
	for _, want := range []string{"Usage: fanmon", "CLOSE_NOWRITE", "EVENT_ON_CHILD", "-status-addr", "put -- before"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q:\n%s", want, out)
		}
	}
}
