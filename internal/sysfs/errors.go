package sysfs

import "codeberg.org/mutker/powerstatd/internal/errors"

const (
	ErrReadFailed   = errors.ErrorCode("sysfs_read_failed")
	ErrWriteFailed  = errors.ErrorCode("sysfs_write_failed")
	ErrParseFailed  = errors.ErrorCode("sysfs_parse_failed")
	ErrEmptyFile    = errors.ErrorCode("sysfs_empty_file")
	ErrMSRFailed    = errors.ErrorCode("sysfs_msr_read_failed")
	ErrTraceFailed  = errors.ErrorCode("sysfs_trace_failed")
	ErrInvalidRange = errors.ErrorCode("sysfs_invalid_cpu_range")
)
