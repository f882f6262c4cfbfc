package stat_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
	"github.com/stretchr/testify/assert"
)

func TestWraparoundCounter(t *testing.T) {
	tests := []struct {
		name    string
		last    uint64
		current uint64
		max     uint64
		hasMax  bool
		delta   uint64
	}{
		{"no wrap", 100, 150, 150, true, 50},
		{"wrap with known max", 100, 40, 150, true, 90},
		{"wrap with unknown max", 100, 40, 0, false, 40},
		{"unchanged", 100, 100, 0, false, 0},
		{"max below last", 200, 40, 150, true, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := stat.NewWraparoundCounter("rc6", tt.last, tt.max, tt.hasMax)
			before := w.Accumulated()

			assert.Equal(t, tt.delta, w.Update(tt.current))
			assert.Equal(t, before+tt.delta, w.Accumulated())
			assert.Equal(t, tt.current, w.Last())
		})
	}
}

func TestWraparoundLossyFallbackWarns(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, true)
	logger.SetLogLevel(logger.WarnLevel)

	w := stat.NewWraparoundCounter("s0ix", 100, 0, false)
	w.Update(40)

	assert.Contains(t, buf.String(), "unknown maximum")
	assert.Contains(t, buf.String(), "counter=s0ix")
}

func TestWraparoundMonotonic(t *testing.T) {
	w := stat.NewWraparoundCounter("rc6", 0, 1000, true)
	reads := []uint64{10, 500, 999, 3, 400, 100, 100, 900, 0}

	prev := w.Accumulated()
	for _, r := range reads {
		w.Update(r)
		assert.GreaterOrEqual(t, w.Accumulated(), prev)
		prev = w.Accumulated()
	}
}

func TestWrapTableLookup(t *testing.T) {
	table := stat.WrapTable{
		Classes: map[string]string{"haswell": "core", "broadwell": "core", "airmont": "atom"},
		Max:     map[string]uint64{"core": 5000},
	}

	max, ok := table.Lookup("broadwell")
	assert.True(t, ok)
	assert.Equal(t, uint64(5000), max)

	_, ok = table.Lookup("airmont")
	assert.False(t, ok)

	_, ok = table.Lookup("unknown")
	assert.False(t, ok)
}
