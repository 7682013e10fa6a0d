package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/fanmon/fanmon/internal/config"
)

func TestRun_UsageExitCodes(t *testing.T) {
	tests := map[string]struct {
		args []string
		want int
	}{
		"help":          {[]string{"fanmon", "-h"}, exitOK},
		"no directory":  {[]string{"fanmon"}, exitUsage},
		"dangling +e":   {[]string{"fanmon", "+e"}, exitUsage},
		"bad log level": {[]string{"fanmon", "-log-level", "loud", "/tmp"}, exitUsage},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := run(tc.args); got != tc.want {
				t.Fatalf("run(%q) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}

func TestStatusAuth(t *testing.T) {
	auth, err := statusAuth(&config.Config{})
	if err != nil || auth != nil {
		t.Fatalf("statusAuth(no key) = %v, %v", auth, err)
	}
	_, err = statusAuth(&config.Config{StatusPublicKey: filepath.Join(t.TempDir(), "missing.pem")})
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for level, want := range tests {
		l := newLogger(level)
		if !l.Enabled(context.Background(), want) {
			t.Errorf("newLogger(%q) disables %v", level, want)
		}
		if want > slog.LevelDebug && l.Enabled(context.Background(), want-1) {
			t.Errorf("newLogger(%q) enables below %v", level, want)
		}
	}
}
