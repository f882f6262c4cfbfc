package gpu

import (
	"codeberg.org/mutker/powerstatd/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// NVML lifecycle
	ErrNotInitialized    = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed        = errors.ErrorCode("gpu_init_failed")
	ErrDeviceNotFound    = errors.ErrorCode("gpu_device_not_found")
	ErrDeviceCountFailed = errors.ErrorCode("gpu_device_count_failed")
	ErrShutdownFailed    = errors.ErrorCode("gpu_shutdown_failed")

	// Residency sources
	ErrClockReadFailed  = errors.ErrorCode("gpu_clock_read_failed")
	ErrTraceUnavailable = errors.ErrorCode("gpu_trace_unavailable")
	ErrNoInitialFreq    = errors.ErrorCode("gpu_no_initial_frequency")
	ErrUnknownFirmware  = errors.ErrorCode("gpu_unknown_firmware")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
