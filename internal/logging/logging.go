// Package logging builds the zap logger used across reviewd.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format selects the encoder: "json" or "console".
	Format string `koanf:"format"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	return nil
}

// New creates a zap logger from config.
func New(cfg Config) (*zap.Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Format
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Sync flushes buffered log entries, ignoring harmless stdout sync errors.
// On Linux, syncing stdout/stderr returns EINVAL or ENOTTY.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
