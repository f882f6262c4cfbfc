package gpu

import (
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

// Type identifies the GPU family found on the machine.
type Type int

const (
	None Type = iota
	Mali
	I915
	Nvidia
)

func (t Type) String() string {
	switch t {
	case Mali:
		return "mali"
	case I915:
		return "i915"
	case Nvidia:
		return "nvidia"
	default:
		return "none"
	}
}

const (
	maliDevice    = "/sys/class/misc/mali0/device"
	i915Module    = "/sys/module/i915"
	i915Card      = "/sys/class/drm/card0"
	nvidiaVersion = "/proc/driver/nvidia/version"
)

// Detect probes sysfs for a known GPU driver. Mali wins over i915 and i915
// over NVIDIA when several are present.
func Detect(fs sysfs.FS) Type {
	t := None

	switch {
	case fs.Exists(maliDevice):
		t = Mali
	case fs.Exists(i915Module) && fs.Exists(i915Card):
		t = I915
	case fs.Exists(nvidiaVersion):
		t = Nvidia
	}

	logger.Debug().Str("gpu", t.String()).Msg("Detected GPU type")

	return t
}
