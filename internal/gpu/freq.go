package gpu

import (
	"path"
	"regexp"
	"strconv"

	"codeberg.org/mutker/powerstatd/internal/device"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

// FreqStatName is the collector name shared by every GPU frequency source.
const FreqStatName = "gpufreq"

type traceEvent struct {
	event   string
	re      *regexp.Regexp
	current string
}

var traceEvents = map[Type]traceEvent{
	I915: {
		event:   "i915/intel_gpu_freq_change",
		re:      regexp.MustCompile(`\s(\d+\.\d+):\s+intel_gpu_freq_change:\s+new_freq=(\d+)`),
		current: i915Card + "/gt_cur_freq_mhz",
	},
	Mali: {
		event:   "mali_dvfs/mali_dvfs_set_clock",
		re:      regexp.MustCompile(`\s(\d+\.\d+):\s+mali_dvfs_set_clock:\s+frequency=(\d+)`),
		current: maliDevice + "/clock",
	},
}

// HasTraceEvent reports whether t has a frequency-change trace event and
// the tracer exposes it.
func HasTraceEvent(t Type, trace TraceSource) bool {
	ev, ok := traceEvents[t]
	return ok && trace != nil && trace.HasEvent(ev.event)
}

type traceFreq struct {
	ev     traceEvent
	trace  TraceSource
	uptime Uptime
	cursor float64
	dwell  *dwell
}

// NewTraceFreqStat reconstructs GPU frequency residency from the kernel
// frequency-change trace event. Residency is in seconds keyed by MHz, and
// the open interval is closed at the current uptime on every read.
//
// Records are assumed to arrive in timestamp order with none lost; a
// dropped event credits its interval to the previous frequency.
func NewTraceFreqStat(t Type, fs sysfs.FS, trace TraceSource) (*stat.Stat, error) {
	errFactory := errors.New()

	ev, ok := traceEvents[t]
	if !ok || trace == nil || !trace.HasEvent(ev.event) {
		return nil, errFactory.WithData(ErrTraceUnavailable, map[string]string{"gpu": t.String()})
	}

	if err := trace.Enable(ev.event); err != nil {
		return nil, errFactory.Wrap(ErrTraceUnavailable, err)
	}

	current, err := fs.ReadUint(ev.current)
	if err != nil {
		return nil, errFactory.Wrap(ErrNoInitialFreq, err)
	}

	now, err := fs.Uptime()
	if err != nil {
		return nil, errFactory.Wrap(ErrNoInitialFreq, err)
	}

	src := &traceFreq{
		ev:     ev,
		trace:  trace,
		uptime: fs.Uptime,
		cursor: now,
		dwell:  newDwell(strconv.FormatUint(current, 10), now),
	}

	return stat.New(FreqStatName, src.read, stat.WithNumericKeys()), nil
}

func (s *traceFreq) read() stat.Snapshot {
	records, err := s.trace.Records(s.ev.re, s.cursor)
	if err != nil {
		logger.Warn().Err(err).Str("event", s.ev.event).Msg("Trace unreadable")
	}

	for _, r := range records {
		s.dwell.advance(r.Timestamp, r.Value)
		s.cursor = r.Timestamp
	}

	if now, err := s.uptime(); err == nil {
		s.dwell.advance(now, s.dwell.state)
	}

	return s.dwell.snapshot()
}

// PolledFreqDir returns the devfreq directory of a GPU exposing a
// trans_stat table, or "" when there is none.
func PolledFreqDir(t Type, fs sysfs.FS) string {
	if t != Mali {
		return ""
	}

	for _, dir := range fs.Glob(maliDevice + "/devfreq/*") {
		if fs.Exists(dir + "/trans_stat") {
			return dir
		}
	}

	return ""
}

// IsGPUDevfreq reports whether a /sys/class/devfreq entry is the same
// device as the GPU's polled table.
func IsGPUDevfreq(gpuDir string) func(string) bool {
	return func(dir string) bool {
		return gpuDir != "" && path.Base(dir) == path.Base(gpuDir)
	}
}

// NewPolledFreqStat reads GPU frequency residency from a devfreq table.
func NewPolledFreqStat(fs sysfs.FS, dir string) *stat.Stat {
	return device.NewDevfreqStat(FreqStatName, fs, dir)
}

type sampledFreq struct {
	src    ClockSource
	uptime Uptime
	dwell  *dwell
}

// NewSampledFreqStat builds frequency residency from a clock that can only
// be sampled. Each read credits the time since the previous read to the
// clock observed then.
func NewSampledFreqStat(src ClockSource, uptime Uptime) (*stat.Stat, error) {
	errFactory := errors.New()

	mhz, err := src.GraphicsClock()
	if err != nil {
		return nil, errFactory.Wrap(ErrNoInitialFreq, err)
	}

	now, err := uptime()
	if err != nil {
		return nil, errFactory.Wrap(ErrNoInitialFreq, err)
	}

	s := &sampledFreq{
		src:    src,
		uptime: uptime,
		dwell:  newDwell(strconv.FormatUint(uint64(mhz), 10), now),
	}

	return stat.New(FreqStatName, s.read, stat.WithNumericKeys()), nil
}

func (s *sampledFreq) read() stat.Snapshot {
	now, err := s.uptime()
	if err != nil {
		return s.dwell.snapshot()
	}

	next := s.dwell.state
	if mhz, err := s.src.GraphicsClock(); err == nil {
		next = strconv.FormatUint(uint64(mhz), 10)
	} else {
		logger.Debug().Err(err).Msg("Graphics clock unreadable")
	}

	s.dwell.advance(now, next)

	return s.dwell.snapshot()
}
