package cpu

import (
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const msrTSC = 0x10

var (
	nehalemPkgMSRs = map[string]uint32{
		"C3": 0x3F8, "C6": 0x3F9, "C7": 0x3FA,
	}
	sandybridgePkgMSRs = map[string]uint32{
		"C2": 0x60D, "C3": 0x3F8, "C6": 0x3F9, "C7": 0x3FA,
	}
	haswellPkgMSRs = map[string]uint32{
		"C2": 0x60D, "C3": 0x3F8, "C6": 0x3F9, "C7": 0x3FA,
		"C8": 0x630, "C9": 0x631, "C10": 0x632,
	}
	silvermontPkgMSRs = map[string]uint32{
		"C6": 0x3FA,
	}
	goldmontPkgMSRs = map[string]uint32{
		"C2": 0x60D, "C3": 0x3F8, "C6": 0x3F9, "C10": 0x632,
	}

	pkgCStateMSRs = map[string]map[string]uint32{
		"nehalem":       nehalemPkgMSRs,
		"westmere":      nehalemPkgMSRs,
		"sandybridge":   sandybridgePkgMSRs,
		"ivybridge":     sandybridgePkgMSRs,
		"haswell":       haswellPkgMSRs,
		"broadwell":     haswellPkgMSRs,
		"skylake":       haswellPkgMSRs,
		"kabylake":      haswellPkgMSRs,
		"cometlake":     haswellPkgMSRs,
		"icelake":       haswellPkgMSRs,
		"tigerlake":     haswellPkgMSRs,
		"alderlake":     haswellPkgMSRs,
		"silvermont":    silvermontPkgMSRs,
		"airmont":       silvermontPkgMSRs,
		"goldmont":      goldmontPkgMSRs,
		"goldmont_plus": goldmontPkgMSRs,
		"tremont":       goldmontPkgMSRs,
	}
)

// HasPackageCStates reports whether package residency MSRs are known for arch.
func HasPackageCStates(arch string) bool {
	_, ok := pkgCStateMSRs[arch]
	return ok
}

type pkgSource struct {
	msr     sysfs.MSR
	leaders []int
	regs    map[string]uint32
}

// NewPackageStat tracks package C-state residency in TSC cycles, read once
// per physical package through that package's leader CPU. C0 is the TSC minus
// every reported package state. It returns nil when arch has no table.
func NewPackageStat(msr sysfs.MSR, arch string, leaders []int) *stat.Stat {
	regs, ok := pkgCStateMSRs[arch]
	if !ok || len(leaders) == 0 {
		return nil
	}

	src := &pkgSource{msr: msr, leaders: leaders, regs: regs}

	return stat.New("cpupkg", src.read)
}

func (s *pkgSource) read() stat.Snapshot {
	snap := make(stat.Snapshot)

	for _, cpu := range s.leaders {
		tsc, err := s.msr.Read(msrTSC, cpu)
		if err != nil {
			logger.Debug().Err(err).Int("cpu", cpu).Msg("TSC unreadable")
			continue
		}

		active := float64(tsc)
		for state, reg := range s.regs {
			v, err := s.msr.Read(reg, cpu)
			if err != nil {
				logger.Debug().Err(err).Int("cpu", cpu).Str("state", state).Msg("package C-state unreadable")
				snap.Add(state, 0)
				continue
			}

			snap.Add(state, float64(v))
			active -= float64(v)
		}

		if active < 0 {
			active = 0
		}
		snap.Add(ActiveState, active)
	}

	return snap
}
