package gpu

import (
	"regexp"

	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

// TraceSource yields kernel trace records. *sysfs.Tracer implements it.
type TraceSource interface {
	HasEvent(event string) bool
	Enable(event string) error
	Records(re *regexp.Regexp, after float64) ([]sysfs.TraceRecord, error)
}

// ClockSource reports the current graphics clock in MHz.
type ClockSource interface {
	GraphicsClock() (uint32, error)
	Close() error
}

// Uptime returns monotonic seconds since boot.
type Uptime func() (float64, error)
