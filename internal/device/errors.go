package device

import "codeberg.org/mutker/tapometer/internal/errors"

const (
	// Connection Errors
	ErrConnectFailed = errors.ErrorCode("device_connect_failed")
	ErrLoginRejected = errors.ErrorCode("device_login_rejected")

	// Read Errors
	ErrReadFailed  = errors.ErrorCode("device_read_failed")
	ErrBadResponse = errors.ErrorCode("device_bad_response")
	ErrDeviceFault = errors.ErrorCode("device_reported_error")
)
