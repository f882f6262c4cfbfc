// Package aggregator builds every collector the machine supports and
// publishes their distributions as one flat report.
package aggregator

import (
	"context"
	"time"

	"codeberg.org/mutker/powerstatd/internal/cpu"
	"codeberg.org/mutker/powerstatd/internal/device"
	"codeberg.org/mutker/powerstatd/internal/disk"
	"codeberg.org/mutker/powerstatd/internal/gpu"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"github.com/prometheus/procfs"
)

// traceTolerance bounds how far the trace collector's sampled time may
// stray from elapsed time before its contribution is discarded.
const traceTolerance = 0.1

// Collector is a residency source refreshed on every publish.
type Collector interface {
	Name() string
	Refresh() stat.Distribution
	WeightedAverage() (float64, bool)
	Total() float64
}

// Aggregator owns the collectors and the disk probe.
type Aggregator struct {
	ctx        context.Context
	fs         sysfs.FS
	log        logger.Logger
	collectors []Collector
	gpuTrace   Collector
	clock      gpu.ClockSource

	transport disk.Transport
	diskPoll  time.Duration
	probe     *disk.Probe

	start float64
}

// New discovers and constructs every applicable collector and starts the
// disk probe. Missing hardware leaves its collector out.
func New(ctx context.Context, fs sysfs.FS, opts ...Option) *Aggregator {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &Aggregator{
		ctx: ctx,
		fs:  fs,
		log: logger.New("aggregator"),
	}

	if o.msr == nil {
		o.msr = sysfs.NewMSR(fs)
	}
	if o.arch == "" {
		o.arch = cpu.DetectArch(fs)
	}
	if len(o.cpus) == 0 {
		online, err := fs.OnlineCPUs()
		if err != nil {
			a.log.Warn().Err(err).Msg("Online CPUs unknown, CPU collectors disabled")
		}
		o.cpus = online
	}

	a.addCPU(o)
	a.addDevices(a.addGPU(o))
	a.startDisk(o)

	if now, err := fs.Uptime(); err == nil {
		a.start = now
	}

	a.log.Info().
		Str("arch", o.arch).
		Strs("collectors", a.Collectors()).
		Bool("disk", a.probe != nil).
		Msg("Collectors initialized")

	return a
}

func (a *Aggregator) add(s *stat.Stat) {
	if s != nil {
		a.collectors = append(a.collectors, s)
	}
}

func (a *Aggregator) addCPU(o *options) {
	if len(o.cpus) == 0 {
		return
	}

	for _, g := range cpu.FreqGroups(a.fs, o.cpus) {
		name := "cpufreq"
		if g.Name != "" {
			name += "_" + g.Name
		}
		a.add(cpu.NewFreqStat(name, a.fs, o.msr, g.CPUs))
	}

	if a.fs.Exists("/sys/devices/system/cpu/cpuidle") {
		a.add(cpu.NewIdleStat(a.fs, o.cpus))
	}

	if cpu.HasPackageCStates(o.arch) {
		infos, err := cpu.CPUInfo(a.fs)
		if err != nil {
			a.log.Debug().Err(err).Msg("cpuinfo unreadable, package C-states disabled")
			return
		}
		a.add(cpu.NewPackageStat(o.msr, o.arch, cpu.PackageLeaders(infos, o.cpus)))
	}
}

// addGPU returns the devfreq directory of a polled GPU, if any.
func (a *Aggregator) addGPU(o *options) string {
	var t gpu.Type
	if o.gpuType != nil {
		t = *o.gpuType
	} else {
		t = gpu.Detect(a.fs)
	}

	tracer := o.tracer
	if tracer == nil {
		if tr, ok := sysfs.NewTracer(a.fs); ok {
			tracer = tr
		}
	}

	polled := gpu.PolledFreqDir(t, a.fs)

	switch {
	case polled != "":
		a.add(gpu.NewPolledFreqStat(a.fs, polled))
	case gpu.HasTraceEvent(t, tracer):
		s, err := gpu.NewTraceFreqStat(t, a.fs, tracer)
		if err != nil {
			a.log.Debug().Err(err).Msg("GPU frequency trace unavailable")
			break
		}
		a.add(s)
		a.gpuTrace = s
	case t == gpu.Nvidia:
		a.addSampledGPU(o)
	}

	a.add(gpu.NewRC6Stat(a.fs, o.arch))
	a.add(gpu.NewS0ixStat(a.fs))

	return polled
}

func (a *Aggregator) addSampledGPU(o *options) {
	open := o.clock
	if open == nil {
		open = func() (gpu.ClockSource, error) {
			src, err := gpu.NewNVMLSource(0)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}

	src, err := open()
	if err != nil {
		a.log.Debug().Err(err).Msg("NVIDIA clock unavailable")
		return
	}

	s, err := gpu.NewSampledFreqStat(src, a.fs.Uptime)
	if err != nil {
		a.log.Debug().Err(err).Msg("NVIDIA clock unreadable")
		_ = src.Close()
		return
	}

	a.clock = src
	a.add(s)
}

func (a *Aggregator) addDevices(gpuDevfreq string) {
	// The polled GPU's devfreq node is already collected as gpufreq.
	for _, s := range device.NewDevfreqStats(a.fs, gpu.IsGPUDevfreq(gpuDevfreq)) {
		a.add(s)
	}

	if device.HasUSBPower(a.fs) {
		a.add(device.NewUSBSuspendStat(a.fs))
	}
}

func (a *Aggregator) startDisk(o *options) {
	if o.noDisk {
		return
	}

	dev := o.diskDev
	if dev == "" {
		mounts := o.mounts
		if mounts == nil {
			mounts = procfs.GetMounts
		}

		var err error
		if dev, err = disk.RootDevice(mounts); err != nil {
			a.log.Debug().Err(err).Msg("Root disk unresolved, disk probe disabled")
			return
		}
	}

	if !a.fs.Exists(dev) {
		a.log.Debug().Str("device", dev).Msg("Disk node missing, disk probe disabled")
		return
	}
	dev = a.fs.Path(dev)

	open := o.open
	if open == nil {
		open = func(dev string) (disk.Transport, error) {
			t, err := disk.NewSGIO(dev)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	}

	t, err := open(dev)
	if err != nil {
		a.log.Debug().Err(err).Str("device", dev).Msg("Disk transport unavailable, disk probe disabled")
		return
	}

	a.transport = t
	a.diskPoll = o.diskPoll
	a.restartProbe()
	a.log.Debug().Str("device", dev).Msg("Disk power mode probe started")
}

func (a *Aggregator) restartProbe() {
	a.probe = disk.NewProbe(a.transport, disk.WithPollInterval(a.diskPoll))
	a.probe.Start(a.ctx)
}

// Collectors returns the names of the active collectors.
func (a *Aggregator) Collectors() []string {
	names := make([]string, 0, len(a.collectors))
	for _, c := range a.collectors {
		names = append(names, c.Name())
	}

	return names
}

// Publish refreshes every collector and merges their distributions with the
// disk probe's result. The probe is restarted for the next interval unless
// it latched an error, which is then reported on every publish.
func (a *Aggregator) Publish() Report {
	elapsed := 0.0
	now, err := a.fs.Uptime()
	if err == nil {
		elapsed = now - a.start
		a.start = now
	}

	r := newReport(time.Now(), elapsed)

	for _, c := range a.collectors {
		dist := c.Refresh()

		if c == a.gpuTrace && !withinTolerance(c.Total(), elapsed) {
			a.log.Warn().
				Str("collector", c.Name()).
				Float64("sampled", c.Total()).
				Float64("elapsed", elapsed).
				Msg("Trace residency disagrees with elapsed time, dropping")
			continue
		}

		for state, pct := range dist {
			r.Values[PercentKey(c.Name(), state)] = pct
		}

		if avg, ok := c.WeightedAverage(); ok {
			r.Values[WeightedAverageKey(c.Name())] = avg
		}
	}

	a.mergeDisk(r)

	return r
}

func (a *Aggregator) mergeDisk(r Report) {
	if a.probe == nil {
		return
	}

	dist := a.probe.Result()
	if err := a.probe.Err(); err != nil {
		r.Fields[DiskErrorField] = err.Error()
		return
	}

	for mode, pct := range dist {
		r.Values[PercentKey("disk", mode)] = pct
	}

	// A loop stuck in SG_IO still owns the node; keep it until it exits.
	if !a.probe.Stopped() {
		a.log.Warn().Msg("Disk probe still running, not restarted")
		return
	}

	if a.ctx.Err() == nil {
		a.restartProbe()
	}
}

func withinTolerance(sampled, elapsed float64) bool {
	if elapsed <= 0 {
		return false
	}

	return sampled >= (1-traceTolerance)*elapsed && sampled <= (1+traceTolerance)*elapsed
}

// Close stops the disk probe and releases the GPU clock.
func (a *Aggregator) Close() error {
	var firstErr error

	if a.probe != nil {
		if err := a.probe.Stop(); err != nil {
			firstErr = err
		}
	}

	if a.clock != nil {
		if err := a.clock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
