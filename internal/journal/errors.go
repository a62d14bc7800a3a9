package journal

import "codeberg.org/mutker/tapometer/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("journal_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("journal_invalid_db_path")

	// Record Errors
	ErrInvalidEntry = errors.ErrorCode("journal_invalid_entry")
	ErrRecordFailed = errors.ErrorCode("journal_record_failed")

	// Storage Errors
	ErrStorageAccess    = errors.ErrorCode("journal_storage_access_failed")
	ErrStorageInit      = errors.ErrorCode("journal_storage_init_failed")
	ErrStorageClose     = errors.ErrorCode("journal_storage_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("journal_schema_init_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrorCode("journal_operation_timeout")
	ErrServiceShutdown  = errors.ErrorCode("journal_service_shutdown_failed")
)
