package cpu

import (
	"fmt"

	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const (
	// ActiveState is the synthetic C-state derived from elapsed time.
	ActiveState = "C0"

	cpuidleStatePattern = "/sys/devices/system/cpu/cpu%d/cpuidle/state*"
	pollState           = "POLL"
)

type idleSource struct {
	fs   sysfs.FS
	cpus []int
}

// NewIdleStat tracks C-state residency summed over cpus, in microseconds.
// The cpuidle framework does not report active time, so C0 is the elapsed
// time of every CPU minus its reported idle time, and it is kept out of the
// percentage denominator.
func NewIdleStat(fs sysfs.FS, cpus []int) *stat.Stat {
	src := &idleSource{fs: fs, cpus: cpus}

	return stat.New("cpuidle", src.read, stat.WithExcluded(ActiveState))
}

func (s *idleSource) read() stat.Snapshot {
	snap := make(stat.Snapshot)

	uptime, err := s.fs.Uptime()
	if err != nil {
		logger.Debug().Err(err).Msg("uptime unreadable, skipping cpuidle read")
		return snap
	}
	epochUsecs := uptime * 1e6

	for _, cpu := range s.cpus {
		var idleUsecs float64

		for _, dir := range s.fs.Glob(fmt.Sprintf(cpuidleStatePattern, cpu)) {
			name, err := s.fs.ReadLine(dir + "/name")
			if err != nil || name == pollState {
				continue
			}

			usecs, err := s.fs.ReadUint(dir + "/time")
			if err != nil {
				logger.Debug().Err(err).Str("state", dir).Msg("cpuidle time unreadable")
				continue
			}

			snap.Add(name, float64(usecs))
			idleUsecs += float64(usecs)
		}

		if active := epochUsecs - idleUsecs; active > 0 {
			snap.Add(ActiveState, active)
		}
	}

	return snap
}
