package cpu_test

import (
	"testing"

	"codeberg.org/mutker/powerstatd/internal/cpu"
	"codeberg.org/mutker/powerstatd/internal/sysfs/sysfstest"
	"github.com/stretchr/testify/assert"
)

func writeIdleState(tree *sysfstest.Tree, cpuID, state, name, usecs string) {
	dir := "/sys/devices/system/cpu/cpu" + cpuID + "/cpuidle/state" + state
	tree.Write(dir+"/name", name+"\n").Write(dir+"/time", usecs+"\n")
}

func TestIdleStat(t *testing.T) {
	tree := sysfstest.New(t).SetUptime("10.000000")
	for _, c := range []string{"0", "1"} {
		writeIdleState(tree, c, "0", "POLL", "5")
		writeIdleState(tree, c, "1", "C1", "1000000")
		writeIdleState(tree, c, "2", "C6", "2000000")
	}

	s := cpu.NewIdleStat(tree.FS(), []int{0, 1})

	// One second passes: each CPU idles 0.2s in C1 and 0.6s in C6.
	tree.SetUptime("11.000000")
	for _, c := range []string{"0", "1"} {
		writeIdleState(tree, c, "0", "POLL", "5000")
		writeIdleState(tree, c, "1", "C1", "1200000")
		writeIdleState(tree, c, "2", "C6", "2600000")
	}

	got := s.Refresh()
	assert.InDelta(t, 25.0, got["C1"], 1e-6)
	assert.InDelta(t, 75.0, got["C6"], 1e-6)
	assert.InDelta(t, 100.0, got["C1"]+got["C6"], 1e-6)
	assert.InDelta(t, 25.0, got[cpu.ActiveState], 1e-6)
	assert.NotContains(t, got, "POLL")

	last := s.Last()
	assert.InDelta(t, 400000.0, last[cpu.ActiveState], 1)
	assert.InDelta(t, 1600000.0, s.Total(), 1)
}

func TestIdleStatNewStateAppears(t *testing.T) {
	tree := sysfstest.New(t).SetUptime("10")
	writeIdleState(tree, "0", "1", "C1", "100")

	s := cpu.NewIdleStat(tree.FS(), []int{0})

	tree.SetUptime("11")
	writeIdleState(tree, "0", "1", "C1", "200")
	writeIdleState(tree, "0", "2", "C10", "300")

	got := s.Refresh()
	assert.InDelta(t, 25.0, got["C1"], 1e-6)
	assert.InDelta(t, 75.0, got["C10"], 1e-6)
}

func TestIdleStatWithoutUptime(t *testing.T) {
	tree := sysfstest.New(t)
	writeIdleState(tree, "0", "1", "C1", "100")

	s := cpu.NewIdleStat(tree.FS(), []int{0})
	assert.Empty(t, s.Refresh())
}
