package cpu

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

const (
	msrMPERF = 0xE7
	msrAPERF = 0xE8

	cpufreqDir    = "/sys/devices/system/cpu/cpu%d/cpufreq"
	policyPattern = "/sys/devices/system/cpu/cpufreq/policy*"
)

// Drivers that pick frequencies autonomously and keep no time_in_state table.
var tablelessDrivers = map[string]bool{
	"intel_pstate": true,
	"amd-pstate":   true,
}

// FreqGroup is a set of CPUs sharing one frequency-scaling policy.
type FreqGroup struct {
	Name string
	CPUs []int
}

// FreqGroups lists cpufreq policies restricted to online, dropping
// policies with none of those CPUs. Machines whose policies all share the
// same maximum frequency collapse to a single group with an empty name.
func FreqGroups(fs sysfs.FS, online []int) []FreqGroup {
	var groups []FreqGroup
	maxFreqs := make(map[uint64]bool)

	for _, dir := range fs.Glob(policyPattern) {
		line, err := fs.ReadLine(dir + "/related_cpus")
		if err != nil {
			continue
		}

		related, err := sysfs.ParseCPUList(strings.ReplaceAll(line, " ", ","))
		if err != nil {
			continue
		}

		cpus := intersect(related, online)
		if len(cpus) == 0 {
			continue
		}

		if max, err := fs.ReadUint(dir + "/cpuinfo_max_freq"); err == nil {
			maxFreqs[max] = true
		}

		name := dir[strings.LastIndex(dir, "/")+1:]
		groups = append(groups, FreqGroup{Name: name, CPUs: cpus})
	}

	if len(groups) <= 1 || len(maxFreqs) <= 1 {
		return []FreqGroup{{CPUs: online}}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].CPUs[0] < groups[j].CPUs[0] })

	return groups
}

func intersect(cpus, keep []int) []int {
	set := make(map[int]bool, len(keep))
	for _, c := range keep {
		set[c] = true
	}

	var out []int
	for _, c := range cpus {
		if set[c] {
			out = append(out, c)
		}
	}

	return out
}

type freqSource struct {
	fs      sysfs.FS
	msr     sysfs.MSR
	cpus    []int
	tables  bool
	maxFreq float64

	lastAPERF map[int]uint64
	lastMPERF map[int]uint64
	deltaA    float64
	deltaM    float64
}

// NewFreqStat tracks frequency residency over cpus. Keys are frequencies in
// kHz and time is in the kernel's 10ms time_in_state units. When the driver
// keeps no table the distribution is empty and the weighted average is
// estimated from APERF/MPERF.
func NewFreqStat(name string, fs sysfs.FS, msr sysfs.MSR, cpus []int) *stat.Stat {
	if name == "" {
		name = "cpufreq"
	}

	src := &freqSource{
		fs:        fs,
		msr:       msr,
		cpus:      cpus,
		lastAPERF: make(map[int]uint64),
		lastMPERF: make(map[int]uint64),
	}
	src.detect()

	return stat.New(name, src.read,
		stat.WithNumericKeys(),
		stat.WithWeightedAverage(src.aperfAverage),
	)
}

func (f *freqSource) detect() {
	if len(f.cpus) == 0 {
		return
	}

	dir := fmt.Sprintf(cpufreqDir, f.cpus[0])
	driver, _ := f.fs.ReadLine(dir + "/scaling_driver")
	f.tables = !tablelessDrivers[driver] && f.fs.Exists(dir+"/stats/time_in_state")

	if max, err := f.fs.ReadUint(dir + "/cpuinfo_max_freq"); err == nil {
		f.maxFreq = float64(max)
	}

	logger.Debug().
		Str("driver", driver).
		Bool("tables", f.tables).
		Float64("max_freq", f.maxFreq).
		Ints("cpus", f.cpus).
		Msg("cpufreq source detected")
}

func (f *freqSource) read() stat.Snapshot {
	if f.tables {
		return f.readTables()
	}

	f.sampleAPERF()

	return stat.Snapshot{}
}

func (f *freqSource) readTables() stat.Snapshot {
	snap := make(stat.Snapshot)

	for _, cpu := range f.cpus {
		path := fmt.Sprintf(cpufreqDir, cpu) + "/stats/time_in_state"
		lines, err := f.fs.ReadLines(path)
		if err != nil {
			logger.Debug().Err(err).Int("cpu", cpu).Msg("time_in_state unreadable")
			continue
		}

		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}

			ticks, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			snap.Add(fields[0], float64(ticks))
		}
	}

	return snap
}

func (f *freqSource) sampleAPERF() {
	f.deltaA, f.deltaM = 0, 0

	for _, cpu := range f.cpus {
		a, errA := f.msr.Read(msrAPERF, cpu)
		m, errM := f.msr.Read(msrMPERF, cpu)
		if errA != nil || errM != nil {
			delete(f.lastAPERF, cpu)
			delete(f.lastMPERF, cpu)
			continue
		}

		lastA, okA := f.lastAPERF[cpu]
		lastM, okM := f.lastMPERF[cpu]
		if okA && okM && a >= lastA && m >= lastM {
			f.deltaA += float64(a - lastA)
			f.deltaM += float64(m - lastM)
		}

		f.lastAPERF[cpu] = a
		f.lastMPERF[cpu] = m
	}
}

func (f *freqSource) aperfAverage(stat.Snapshot) (float64, bool) {
	if f.tables || f.deltaM == 0 || f.maxFreq == 0 {
		return 0, false
	}

	return f.maxFreq * f.deltaA / f.deltaM, true
}
