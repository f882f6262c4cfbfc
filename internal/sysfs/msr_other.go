//go:build !linux

package sysfs

import "codeberg.org/mutker/powerstatd/internal/errors"

// MSR reads a model-specific register on one logical CPU.
type MSR interface {
	Read(reg uint32, cpu int) (uint64, error)
}

type noMSR struct{}

// NewMSR returns an MSR that always fails; the msr driver is Linux-only.
func NewMSR(FS) MSR {
	return noMSR{}
}

func (noMSR) Read(uint32, int) (uint64, error) {
	return 0, errors.New().New(errors.ErrUnsupported)
}
