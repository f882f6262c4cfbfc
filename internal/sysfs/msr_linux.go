//go:build linux

package sysfs

import (
	"encoding/binary"
	"fmt"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"golang.org/x/sys/unix"
)

// MSR reads a model-specific register on one logical CPU.
type MSR interface {
	Read(reg uint32, cpu int) (uint64, error)
}

type devMSR struct {
	fs FS
}

// NewMSR returns an MSR backed by the msr driver's /dev/cpu/<n>/msr nodes.
func NewMSR(fs FS) MSR {
	return &devMSR{fs: fs}
}

func (m *devMSR) Read(reg uint32, cpu int) (uint64, error) {
	errFactory := errors.New()
	path := m.fs.Path(fmt.Sprintf("/dev/cpu/%d/msr", cpu))

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, errFactory.WrapWithData(ErrMSRFailed, err, path)
	}
	defer unix.Close(fd)

	buf := make([]byte, 8)
	n, err := unix.Pread(fd, buf, int64(reg))
	if err != nil {
		return 0, errFactory.WrapWithData(ErrMSRFailed, err, fmt.Sprintf("%s@%#x", path, reg))
	}
	if n != len(buf) {
		return 0, errFactory.WithData(ErrMSRFailed, fmt.Sprintf("%s@%#x: short read %d", path, reg, n))
	}

	return binary.LittleEndian.Uint64(buf), nil
}
