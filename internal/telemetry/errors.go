package telemetry

import "codeberg.org/mutker/powerstatd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidPath   = errors.ErrorCode("telemetry_invalid_textfile_path")

	// Export Errors
	ErrInvalidReport = errors.ErrorCode("telemetry_invalid_report")
	ErrRegister      = errors.ErrorCode("telemetry_register_failed")
	ErrWriteTextfile = errors.ErrorCode("telemetry_write_textfile_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrorCode("telemetry_operation_timeout")
)
