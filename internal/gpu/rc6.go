package gpu

import (
	"strings"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const (
	rc6Enable    = i915Card + "/power/rc6_enable"
	rc6Residency = i915Card + "/power/rc6_residency_ms"
	s0ixCounter  = "/sys/kernel/debug/pmc_core/slp_s0_residency_usec"
	dmcInfo      = "/sys/kernel/debug/dri/0/i915_dmc_info"
)

// rc6Wrap holds the point at which i915 rc6_residency_ms rolls over: the
// 32-bit hardware counter times its tick (1.28us on core, 0.833us on atom).
var rc6Wrap = stat.WrapTable{
	Classes: map[string]string{
		"sandybridge": "core", "ivybridge": "core", "haswell": "core",
		"broadwell": "core", "skylake": "core", "kabylake": "core",
		"cometlake": "core", "icelake": "core", "tigerlake": "core",
		"alderlake":  "core",
		"silvermont": "atom", "airmont": "atom", "goldmont": "atom",
		"goldmont_plus": "atom", "tremont": "atom",
	},
	Max: map[string]uint64{
		"core": 5497558,
		"atom": 3577707,
	},
}

// IsRC6Supported reports whether both RC6 nodes exist and RC6 is enabled.
func IsRC6Supported(fs sysfs.FS) bool {
	if !fs.Exists(rc6Residency) {
		return false
	}

	mask, err := fs.ReadUint(rc6Enable)
	if err != nil {
		return false
	}

	return mask&1 == 1
}

// IsDC6Supported reports whether the display engine counts DC6 entries.
func IsDC6Supported(fs sysfs.FS) bool {
	lines, err := fs.ReadLines(dmcInfo)
	if err != nil {
		return false
	}

	for _, line := range lines {
		if strings.Contains(line, "DC5 -> DC6") {
			return true
		}
	}

	return false
}

var firmwareStatus = map[string]struct {
	file   string
	marker string
}{
	"dmc": {file: dmcInfo, marker: "fw loaded: yes"},
	"guc": {file: "/sys/kernel/debug/dri/0/i915_guc_load_status", marker: "load SUCCESS"},
	"huc": {file: "/sys/kernel/debug/dri/0/i915_huc_load_status", marker: "load SUCCESS"},
}

// CheckFirmwareLoaded reports whether the named i915 firmware (dmc, guc or
// huc) loaded. Unknown names return an error; missing debugfs nodes return
// false.
func CheckFirmwareLoaded(fs sysfs.FS, name string) (bool, error) {
	fw, ok := firmwareStatus[name]
	if !ok {
		return false, errors.New().WithData(ErrUnknownFirmware, map[string]string{"firmware": name})
	}

	lines, err := fs.ReadLines(fw.file)
	if err != nil {
		return false, nil
	}

	for _, line := range lines {
		if strings.Contains(line, fw.marker) {
			return true, nil
		}
	}

	return false, nil
}

// counterStat reports a wrapping idle-residency counter against uptime.
// Raw values share the counter's unit; active time is elapsed uptime minus
// accumulated idle time.
type counterStat struct {
	fs      sysfs.FS
	path    string
	perSec  float64
	idle    string
	active  string
	counter *stat.WraparoundCounter
}

func (c *counterStat) read() stat.Snapshot {
	snap := stat.Snapshot{c.idle: 0, c.active: 0}

	raw, err := c.fs.ReadUint(c.path)
	if err != nil {
		logger.Debug().Err(err).Str("path", c.path).Msg("residency counter unreadable")
	} else {
		c.counter.Update(raw)
	}

	idle := float64(c.counter.Accumulated())
	snap[c.idle] = idle

	uptime, err := c.fs.Uptime()
	if err != nil {
		return snap
	}

	if active := uptime*c.perSec - idle; active > 0 {
		snap[c.active] = active
	}

	return snap
}

// NewRC6Stat tracks the GPU RC6 share of time, in milliseconds, or returns
// nil when RC6 is unsupported. arch selects the wraparound limit; unknown
// architectures wrap lossily.
func NewRC6Stat(fs sysfs.FS, arch string) *stat.Stat {
	if !IsRC6Supported(fs) {
		return nil
	}

	initial, err := fs.ReadUint(rc6Residency)
	if err != nil {
		return nil
	}

	limit, hasMax := rc6Wrap.Lookup(arch)
	src := &counterStat{
		fs:      fs,
		path:    rc6Residency,
		perSec:  1e3,
		idle:    "RC6",
		active:  "RC0",
		counter: stat.NewWraparoundCounter("rc6", initial, limit, hasMax),
	}

	return stat.New("rc6", src.read)
}

// NewS0ixStat tracks the platform S0ix share of time, in microseconds, or
// returns nil when pmc_core does not expose the counter. The rollover point
// is unknown so wraps are lossy.
func NewS0ixStat(fs sysfs.FS) *stat.Stat {
	initial, err := fs.ReadUint(s0ixCounter)
	if err != nil {
		return nil
	}

	src := &counterStat{
		fs:      fs,
		path:    s0ixCounter,
		perSec:  1e6,
		idle:    "S0ix",
		active:  "S0",
		counter: stat.NewWraparoundCounter("s0ix", initial, 0, false),
	}

	return stat.New("s0ix", src.read)
}
