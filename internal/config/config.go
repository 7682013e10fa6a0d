// Package config builds the monitor configuration from an optional YAML file
// and the command line.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fanmon/fanmon/internal/mask"
)

// Defaults applied by applyDefaults.
const (
	DefaultLogLevel   = "info"
	DefaultFormat     = "text"
	DefaultBufferSize = 8192
	// MinBufferSize keeps a single read large enough for a batch of records.
	MinBufferSize = 4096
)

// Config is the validated monitor configuration. It is constructed once and
// passed by value or pointer into the components that need it; nothing in
// the program reads configuration from package state.
type Config struct {
	// Directories lists the paths to mark. At least one is required.
	Directories []string `yaml:"directories"`

	// ResetMask starts the mask from zero instead of the full default.
	ResetMask bool `yaml:"reset_mask"`

	// Events holds mask directives in "+NAME" / "-NAME" form, applied in
	// order. A bare NAME is an add. Names follow mask.Lookup rules.
	Events []string `yaml:"events"`

	// StrictCategories makes unknown category names a configuration error
	// instead of being skipped.
	StrictCategories bool `yaml:"strict_categories"`

	// LogLevel sets the minimum diagnostic severity: "debug", "info", "warn",
	// or "error". Defaults to "info".
	LogLevel string `yaml:"log_level"`

	// Format selects the report format: "text" or "json". Defaults to "text".
	Format string `yaml:"format"`

	// StatusAddr enables the status HTTP endpoint on this address
	// (e.g. "127.0.0.1:9100"). Empty disables it.
	StatusAddr string `yaml:"status_addr"`

	// StatusPublicKey is a PEM file holding the RSA key that verifies RS256
	// bearer tokens on /stats and /watches. Empty leaves them open.
	StatusPublicKey string `yaml:"status_public_key"`

	// StatusIssuer and StatusAudience, when set, must match the token's
	// "iss" and "aud" claims.
	StatusIssuer   string `yaml:"status_issuer"`
	StatusAudience string `yaml:"status_audience"`

	// BufferSize is the size of the fanotify read buffer in bytes.
	BufferSize int `yaml:"buffer_size"`

	// IncludeSelf reports events caused by the monitor process itself.
	IncludeSelf bool `yaml:"include_self"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validFormats is the set of accepted report formats.
var validFormats = map[string]bool{
	"text": true,
	"json": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates it. Directories may be left empty in the file when
// they are supplied on the command line; use ParseArgs for the full flow.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg, false); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}
	return &cfg, nil
}

// Mask folds the configured directives into the subscription mask. skipped
// lists the names that matched no category; with StrictCategories set they
// are reported as an error instead.
func (c *Config) Mask() (m mask.Mask, skipped []string, err error) {
	ds := make([]mask.Directive, 0, len(c.Events))
	for _, ev := range c.Events {
		d, ok, perr := mask.ParseDirective(ev)
		if perr != nil {
			return 0, nil, perr
		}
		if !ok {
			skipped = append(skipped, ev)
			continue
		}
		ds = append(ds, d)
	}
	if c.StrictCategories && len(skipped) > 0 {
		return 0, skipped, fmt.Errorf("unknown event categories: %v", skipped)
	}
	return mask.Build(c.ResetMask, ds), skipped, nil
}

// applyDefaults fills in zero-value optional fields.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
}

// validate checks enumerated fields. needDirs marks a complete
// configuration: at least one directory is required and a status key needs a
// status address. A file on its own may leave those to the command line.
func validate(cfg *Config, needDirs bool) error {
	var errs []error

	if needDirs && len(cfg.Directories) == 0 {
		errs = append(errs, errors.New("at least one directory is required"))
	}
	for i, d := range cfg.Directories {
		if d == "" {
			errs = append(errs, fmt.Errorf("directories[%d]: empty path", i))
		}
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validFormats[cfg.Format] {
		errs = append(errs, fmt.Errorf("format %q must be one of: text, json", cfg.Format))
	}
	if cfg.BufferSize < MinBufferSize {
		errs = append(errs, fmt.Errorf("buffer_size %d must be at least %d", cfg.BufferSize, MinBufferSize))
	}
	if needDirs && cfg.StatusPublicKey != "" && cfg.StatusAddr == "" {
		errs = append(errs, errors.New("status_public_key requires status_addr"))
	}
	if _, _, err := cfg.Mask(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}

	return errors.Join(errs...)
}
