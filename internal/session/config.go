package session

import (
	"time"

	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/errors"
)

// Config is the immutable input of one measurement session.
type Config struct {
	Address     string
	Credentials device.Credentials
	Interval    time.Duration
	Duration    time.Duration
	OutputDir   string
	OutputName  string
}

// Validate rejects a config before any device or disk I/O happens.
// An interval longer than the duration is allowed; such a session records
// no samples and still produces a header-only output file.
func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Address == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "device address is required")
	}
	if c.Interval <= 0 {
		return errFactory.WithData(ErrInvalidConfig, c.Interval.String()).
			WithMessage("interval must be positive")
	}
	if c.Duration <= 0 {
		return errFactory.WithData(ErrInvalidConfig, c.Duration.String()).
			WithMessage("duration must be positive")
	}
	if c.OutputDir == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "output directory is required")
	}
	if c.OutputName == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "output name is required")
	}

	return nil
}
