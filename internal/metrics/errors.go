package metrics

import "codeberg.org/mutker/powerstatd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrorCode("metrics_storage_init_failed")
	ErrStorageClose = errors.ErrorCode("metrics_storage_close_failed")

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed

	// Collection Errors
	ErrReportRecord  = errors.ErrorCode("metrics_report_record_failed")
	ErrInvalidReport = errors.ErrorCode("metrics_invalid_report")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
