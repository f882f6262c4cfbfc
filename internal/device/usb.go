package device

import (
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const (
	usbPowerPattern = "/sys/bus/usb/devices/*/power"

	usbActive    = "active"
	usbSuspended = "suspended"
)

type usbDurations struct {
	active    uint64
	connected uint64
}

// usbSource diffs each device on its own so devices that come and go
// between reads never subtract their lifetime from the others.
type usbSource struct {
	fs   sysfs.FS
	prev map[string]usbDurations
}

// NewUSBSuspendStat tracks the share of connected time USB devices spent
// suspended, summed over every device, in milliseconds. A device seen for
// the first time counts from zero on its next read; unplugged devices are
// dropped.
func NewUSBSuspendStat(fs sysfs.FS) *stat.Stat {
	src := &usbSource{fs: fs}

	return stat.New("usb", src.read, stat.WithIncremental(false))
}

func (u *usbSource) durations() map[string]usbDurations {
	out := make(map[string]usbDurations)

	for _, dir := range u.fs.Glob(usbPowerPattern) {
		active, err := u.fs.ReadUint(dir + "/active_duration")
		if err != nil {
			continue
		}
		connected, err := u.fs.ReadUint(dir + "/connected_duration")
		if err != nil {
			continue
		}

		out[dir] = usbDurations{active: active, connected: connected}
	}

	return out
}

// read returns the interval's deltas, not raw counters.
func (u *usbSource) read() stat.Snapshot {
	snap := stat.Snapshot{usbActive: 0, usbSuspended: 0}
	cur := u.durations()

	for dir, now := range cur {
		before, ok := u.prev[dir]
		// Counters going backwards mean the port was reused by a new device.
		if !ok || now.active < before.active || now.connected < before.connected {
			continue
		}

		active := now.active - before.active
		connected := now.connected - before.connected

		snap.Add(usbActive, float64(active))
		if connected > active {
			snap.Add(usbSuspended, float64(connected-active))
		}
	}

	u.prev = cur

	return snap
}

// HasUSBPower reports whether any USB device exposes runtime PM durations.
func HasUSBPower(fs sysfs.FS) bool {
	for _, dir := range fs.Glob(usbPowerPattern) {
		if fs.Exists(dir + "/active_duration") {
			return true
		}
	}

	return false
}
