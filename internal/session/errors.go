package session

import "codeberg.org/mutker/tapometer/internal/errors"

const (
	// Lifecycle Errors
	ErrInvalidConfig = errors.ErrorCode("session_invalid_config")
	ErrSessionBusy   = errors.ErrorCode("session_busy")

	// Device Errors
	ErrDeviceUnreachable = errors.ErrorCode("session_device_unreachable")
	ErrSampleReadFailed  = errors.ErrorCode("session_sample_read_failed")

	// Persistence Errors
	ErrPersistFailed    = errors.ErrorCode("session_persist_failed")
	ErrOutputPathFailed = errors.ErrorCode("session_output_path_failed")
)
