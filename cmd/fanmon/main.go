// Command fanmon reports file activity in the given directories using
// fanotify. Every event is written to stdout with the acting process and the
// affected path until SIGINT or SIGTERM is received.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fanmon/fanmon/internal/config"
	"github.com/fanmon/fanmon/internal/monitor"
	"github.com/fanmon/fanmon/internal/report"
	"github.com/fanmon/fanmon/internal/status"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	prog := filepath.Base(args[0])

	cfg, err := config.ParseArgs(prog, args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			config.Usage(os.Stdout, prog)
			return exitOK
		}
		var ue *config.UsageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", prog, ue.Err)
			config.Usage(os.Stderr, prog)
			return exitUsage
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
		return exitFatal
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	reporter, err := report.New(cfg.Format, os.Stdout)
	if err != nil {
		logger.Error("invalid report format", slog.Any("error", err))
		return exitUsage
	}

	auth, err := statusAuth(cfg)
	if err != nil {
		logger.Error("invalid status endpoint key", slog.Any("error", err))
		return exitFatal
	}

	mon, err := monitor.Start(cfg, monitor.WithLogger(logger), monitor.WithReporter(reporter))
	if err != nil {
		logger.Error("failed to start monitor", slog.Any("error", err))
		return exitFatal
	}

	logger.Info("monitoring",
		slog.Any("directories", cfg.Directories),
		slog.String("mask", mon.Mask().String()),
		slog.String("format", cfg.Format),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.StatusAddr != "" {
		if _, err := status.Serve(ctx, cfg.StatusAddr, status.NewServer(mon, logger), auth); err != nil {
			// The monitor is still usable without its status view.
			logger.Warn("status endpoint disabled", slog.Any("error", err))
		}
	}

	if err := mon.Run(); err != nil {
		var fe *monitor.FatalError
		if errors.As(err, &fe) {
			// Marks and descriptors are left to the kernel to reclaim.
			logger.Error("event loop failed", slog.String("op", fe.Op), slog.Any("error", fe.Err))
			os.Exit(exitFatal)
		}
		logger.Error("event loop failed", slog.Any("error", err))
		return exitFatal
	}

	logger.Info("Exiting...")
	return exitOK
}

// statusAuth returns nil when no public key is configured.
func statusAuth(cfg *config.Config) (*status.AuthConfig, error) {
	if cfg.StatusPublicKey == "" {
		return nil, nil
	}
	key, err := status.LoadPublicKey(cfg.StatusPublicKey)
	if err != nil {
		return nil, err
	}
	return &status.AuthConfig{
		PublicKey: key,
		Issuer:    cfg.StatusIssuer,
		Audience:  cfg.StatusAudience,
	}, nil
}

// newLogger constructs a *slog.Logger that writes text log records to stderr
// at the requested minimum level. Stdout is reserved for event reports.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
