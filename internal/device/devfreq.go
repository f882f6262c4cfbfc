// Package device collects residency for platform devices outside the CPU:
// generic devfreq devices and USB power nodes.
package device

import (
	"path"
	"strconv"
	"strings"

	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const (
	devfreqPattern = "/sys/class/devfreq/*"

	transStatHeaderLines = 2
	transStatFooterLines = 1
)

// DevfreqDevices lists devfreq devices that expose a trans_stat table.
func DevfreqDevices(fs sysfs.FS) []string {
	var out []string
	for _, dir := range fs.Glob(devfreqPattern) {
		if fs.Exists(dir + "/trans_stat") {
			out = append(out, dir)
		}
	}

	return out
}

// NewDevfreqStat tracks residency of one devfreq device from its trans_stat
// table, keyed by frequency in Hz with time in milliseconds.
func NewDevfreqStat(name string, fs sysfs.FS, dir string) *stat.Stat {
	if name == "" {
		name = "devfreq_" + path.Base(dir)
	}

	file := dir + "/trans_stat"
	read := func() stat.Snapshot {
		lines, err := fs.ReadLines(file)
		if err != nil {
			logger.Debug().Err(err).Str("path", file).Msg("trans_stat unreadable")
			return nil
		}

		return ParseTransStat(lines)
	}

	return stat.New(name, read, stat.WithNumericKeys())
}

// NewDevfreqStats builds one collector per devfreq device. Each collector
// owns its table; nothing is shared between instances.
func NewDevfreqStats(fs sysfs.FS, skip func(dir string) bool) []*stat.Stat {
	var stats []*stat.Stat
	for _, dir := range DevfreqDevices(fs) {
		if skip != nil && skip(dir) {
			continue
		}
		stats = append(stats, NewDevfreqStat("", fs, dir))
	}

	return stats
}

// ParseTransStat reads the per-frequency time column of a devfreq trans_stat
// table. The first two lines and the last line are headers and footer.
//
//	     From  :   To
//	           :  100000000 200000000   time(ms)
//	*  100000000:         0         5      1000
//	   200000000:         4         0      2000
//	Total transition : 9
func ParseTransStat(lines []string) stat.Snapshot {
	snap := make(stat.Snapshot)
	if len(lines) <= transStatHeaderLines+transStatFooterLines {
		return snap
	}

	for _, line := range lines[transStatHeaderLines : len(lines)-transStatFooterLines] {
		freq, rest, ok := strings.Cut(strings.TrimLeft(line, " *"), ":")
		if !ok {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}

		ms, err := strconv.ParseUint(fields[len(fields)-1], 10, 64)
		if err != nil {
			continue
		}

		snap.Add(strings.TrimSpace(freq), float64(ms))
	}

	return snap
}
