package gpu_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/gpu"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"codeberg.org/mutker/powerstatd/internal/sysfs/sysfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  gpu.Type
	}{
		{"none", nil, gpu.None},
		{"mali", []string{"/sys/class/misc/mali0/device/clock"}, gpu.Mali},
		{"i915", []string{"/sys/module/i915/version", "/sys/class/drm/card0/dev"}, gpu.I915},
		{"i915 module without card", []string{"/sys/module/i915/version"}, gpu.None},
		{"nvidia", []string{"/proc/driver/nvidia/version"}, gpu.Nvidia},
		{"mali wins", []string{"/sys/class/misc/mali0/device/clock", "/proc/driver/nvidia/version"}, gpu.Mali},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := sysfstest.New(t)
			for _, f := range tt.files {
				tree.Write(f, "x\n")
			}

			got := gpu.Detect(tree.FS())
			assert.Equal(t, tt.want, got)
		})
	}
}

const traceEnable = "/sys/kernel/tracing/events/i915/intel_gpu_freq_change/enable"

func i915TraceTree(t *testing.T) *sysfstest.Tree {
	return sysfstest.New(t).
		Write("/sys/kernel/tracing/trace", "# tracer: nop\n#\n").
		Write("/sys/kernel/tracing/tracing_on", "0\n").
		Write(traceEnable, "0\n").
		Write("/sys/class/drm/card0/gt_cur_freq_mhz", "300\n").
		SetUptime("0.00")
}

func traceLine(ts, freq string) string {
	return "     kworker/0:1-42    [000] d..1  " + ts + ": intel_gpu_freq_change: new_freq=" + freq + "\n"
}

func TestTraceFreqStat(t *testing.T) {
	tree := i915TraceTree(t)
	tracer, ok := sysfs.NewTracer(tree.FS())
	require.True(t, ok)
	require.True(t, gpu.HasTraceEvent(gpu.I915, tracer))

	s, err := gpu.NewTraceFreqStat(gpu.I915, tree.FS(), tracer)
	require.NoError(t, err)
	assert.Equal(t, "1", tree.Read(traceEnable))
	assert.Equal(t, "1", tree.Read("/sys/kernel/tracing/tracing_on"))

	tree.Write("/sys/kernel/tracing/trace", "# tracer: nop\n"+
		traceLine("1.000000", "300")+
		traceLine("3.000000", "450")+
		traceLine("6.000000", "600")).
		SetUptime("10.00")

	got := s.Refresh()
	assert.Equal(t, stat.Snapshot{"300": 3, "450": 3, "600": 4}, s.Last())
	assert.InDelta(t, 10.0, s.Total(), 1e-9)
	assert.InDelta(t, 30.0, got["300"], 1e-9)
	assert.InDelta(t, 40.0, got["600"], 1e-9)

	avg, ok := s.WeightedAverage()
	require.True(t, ok)
	assert.InDelta(t, (300*3+450*3+600*4)/10.0, avg, 1e-9)

	// Records at or before the cursor are not replayed.
	tree.SetUptime("12.00")
	s.Refresh()
	assert.InDelta(t, 2.0, s.Last()["600"], 1e-9)
	assert.InDelta(t, 0.0, s.Last()["300"], 1e-9)
	assert.InDelta(t, 2.0, s.Total(), 1e-9)
}

func TestTraceFreqStatUnavailable(t *testing.T) {
	tree := sysfstest.New(t).SetUptime("1.00")
	_, ok := sysfs.NewTracer(tree.FS())
	assert.False(t, ok)

	_, err := gpu.NewTraceFreqStat(gpu.I915, tree.FS(), nil)
	assert.True(t, errors.HasCode(err, gpu.ErrTraceUnavailable))

	tree = i915TraceTree(t)
	tracer, _ := sysfs.NewTracer(tree.FS())
	assert.False(t, gpu.HasTraceEvent(gpu.Nvidia, tracer))

	tree.Remove("/sys/class/drm/card0/gt_cur_freq_mhz")
	_, err = gpu.NewTraceFreqStat(gpu.I915, tree.FS(), tracer)
	assert.True(t, errors.HasCode(err, gpu.ErrNoInitialFreq))
}

type fakeClock struct {
	mhz []uint32
	err error
}

func (c *fakeClock) GraphicsClock() (uint32, error) {
	if c.err != nil {
		return 0, c.err
	}
	v := c.mhz[0]
	if len(c.mhz) > 1 {
		c.mhz = c.mhz[1:]
	}
	return v, nil
}

func (c *fakeClock) Close() error { return nil }

func fakeUptime(values ...float64) gpu.Uptime {
	return func() (float64, error) {
		v := values[0]
		if len(values) > 1 {
			values = values[1:]
		}
		return v, nil
	}
}

func TestSampledFreqStat(t *testing.T) {
	clock := &fakeClock{mhz: []uint32{500, 800, 800}}
	s, err := gpu.NewSampledFreqStat(clock, fakeUptime(0, 2, 5))
	require.NoError(t, err)

	got := s.Refresh()
	assert.InDelta(t, 100.0, got["500"], 1e-9)
	assert.InDelta(t, 0.0, got["800"], 1e-9)

	got = s.Refresh()
	assert.InDelta(t, 100.0, got["800"], 1e-9)
	avg, ok := s.WeightedAverage()
	require.True(t, ok)
	assert.InDelta(t, 800.0, avg, 1e-9)
}

func TestSampledFreqStatNoClock(t *testing.T) {
	_, err := gpu.NewSampledFreqStat(&fakeClock{err: assert.AnError}, fakeUptime(0))
	assert.True(t, errors.HasCode(err, gpu.ErrNoInitialFreq))
}

const maliTransStat = `     From  :   To
           :  200000000 400000000   time(ms)
*  200000000:         0         1      %s
   400000000:         1         0      %s
Total transition : 2
`

func TestPolledFreqStat(t *testing.T) {
	dir := "/sys/class/misc/mali0/device/devfreq/ff9a0000.gpu"
	tree := sysfstest.New(t).
		Write(dir+"/trans_stat", sprintTransStat("100", "100"))

	got := gpu.PolledFreqDir(gpu.Mali, tree.FS())
	require.Equal(t, dir, got)
	assert.Empty(t, gpu.PolledFreqDir(gpu.I915, tree.FS()))
	assert.True(t, gpu.IsGPUDevfreq(got)("/sys/class/devfreq/ff9a0000.gpu"))
	assert.False(t, gpu.IsGPUDevfreq(got)("/sys/class/devfreq/dmc"))
	assert.False(t, gpu.IsGPUDevfreq("")("/sys/class/devfreq/dmc"))

	s := gpu.NewPolledFreqStat(tree.FS(), got)
	assert.Equal(t, gpu.FreqStatName, s.Name())

	tree.Write(dir+"/trans_stat", sprintTransStat("100", "400"))
	d := s.Refresh()
	assert.InDelta(t, 100.0, d["400000000"], 1e-9)
}

func sprintTransStat(low, high string) string {
	return fmt.Sprintf(maliTransStat, low, high)
}
