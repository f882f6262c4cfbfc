package cpu

import "codeberg.org/mutker/powerstatd/internal/errors"

const (
	ErrCPUInfoFailed = errors.ErrorCode("cpu_cpuinfo_failed")
	ErrNoCPUs        = errors.ErrorCode("cpu_no_cpus")
)
