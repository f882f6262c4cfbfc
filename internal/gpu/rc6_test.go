package gpu_test

import (
	"testing"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/gpu"
	"codeberg.org/mutker/powerstatd/internal/sysfs/sysfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rc6EnablePath    = "/sys/class/drm/card0/power/rc6_enable"
	rc6ResidencyPath = "/sys/class/drm/card0/power/rc6_residency_ms"
)

func TestIsRC6Supported(t *testing.T) {
	tree := sysfstest.New(t)
	assert.False(t, gpu.IsRC6Supported(tree.FS()))

	tree.Write(rc6EnablePath, "1\n")
	assert.False(t, gpu.IsRC6Supported(tree.FS()), "residency node missing")

	tree.Write(rc6ResidencyPath, "0\n")
	assert.True(t, gpu.IsRC6Supported(tree.FS()))

	tree.Write(rc6EnablePath, "6\n")
	assert.False(t, gpu.IsRC6Supported(tree.FS()), "low bit clear")
	assert.Nil(t, gpu.NewRC6Stat(tree.FS(), "skylake"))
}

func TestRC6StatWraps(t *testing.T) {
	tree := sysfstest.New(t).
		Write(rc6EnablePath, "1\n").
		Write(rc6ResidencyPath, "3500000\n").
		SetUptime("3600.00")

	s := gpu.NewRC6Stat(tree.FS(), "silvermont")
	require.NotNil(t, s)
	assert.Equal(t, "rc6", s.Name())

	// 3577707 is the atom rollover: 77707 before the wrap plus 22293 after.
	tree.Write(rc6ResidencyPath, "22293\n").SetUptime("3700.00")
	got := s.Refresh()
	assert.InDelta(t, 100000.0, s.Last()["RC6"], 1e-6)
	assert.InDelta(t, 100.0, got["RC6"], 1e-9)
	assert.InDelta(t, 0.0, got["RC0"], 1e-9)

	tree.Write(rc6ResidencyPath, "72293\n").SetUptime("3800.00")
	got = s.Refresh()
	assert.InDelta(t, 50.0, got["RC6"], 1e-9)
	assert.InDelta(t, 50.0, got["RC0"], 1e-9)

	_, ok := s.WeightedAverage()
	assert.False(t, ok)
}

func TestRC6StatTransientReadFailure(t *testing.T) {
	tree := sysfstest.New(t).
		Write(rc6EnablePath, "1\n").
		Write(rc6ResidencyPath, "1000\n").
		SetUptime("10.00")

	s := gpu.NewRC6Stat(tree.FS(), "unknown")
	require.NotNil(t, s)

	tree.Write(rc6ResidencyPath, "garbage\n").SetUptime("12.00")
	got := s.Refresh()
	assert.InDelta(t, 0.0, got["RC6"], 1e-9)
	assert.InDelta(t, 100.0, got["RC0"], 1e-9)
}

func TestS0ixStat(t *testing.T) {
	const counter = "/sys/kernel/debug/pmc_core/slp_s0_residency_usec"

	tree := sysfstest.New(t).SetUptime("100.00")
	assert.Nil(t, gpu.NewS0ixStat(tree.FS()))

	tree.Write(counter, "0\n")
	s := gpu.NewS0ixStat(tree.FS())
	require.NotNil(t, s)

	tree.Write(counter, "30000000\n").SetUptime("200.00")
	got := s.Refresh()
	assert.InDelta(t, 30.0, got["S0ix"], 1e-9)
	assert.InDelta(t, 70.0, got["S0"], 1e-9)
}

func TestAvailabilityQueries(t *testing.T) {
	const dmc = "/sys/kernel/debug/dri/0/i915_dmc_info"

	tree := sysfstest.New(t)
	assert.False(t, gpu.IsDC6Supported(tree.FS()))

	loaded, err := gpu.CheckFirmwareLoaded(tree.FS(), "dmc")
	require.NoError(t, err)
	assert.False(t, loaded)

	tree.Write(dmc, "fw loaded: yes\npath: i915/kbl_dmc_ver1_04.bin\nversion: 1.4\nDC3 -> DC5 count: 120\nDC5 -> DC6 count: 88\n")
	assert.True(t, gpu.IsDC6Supported(tree.FS()))

	loaded, err = gpu.CheckFirmwareLoaded(tree.FS(), "dmc")
	require.NoError(t, err)
	assert.True(t, loaded)

	tree.Write("/sys/kernel/debug/dri/0/i915_guc_load_status", "GuC firmware: i915/kbl_guc.bin\n\tstatus: fetch SUCCESS, load FAIL\n")
	loaded, err = gpu.CheckFirmwareLoaded(tree.FS(), "guc")
	require.NoError(t, err)
	assert.False(t, loaded)

	_, err = gpu.CheckFirmwareLoaded(tree.FS(), "gsc")
	assert.True(t, errors.HasCode(err, gpu.ErrUnknownFirmware))
}
