package aggregator

import (
	"sort"
	"time"
)

// DiskErrorField is set instead of disk percentages when the probe failed.
const DiskErrorField = "disk_logging_error"

// Report is one flat publication of every collector's distribution.
type Report struct {
	Timestamp time.Time          `json:"timestamp"`
	Elapsed   float64            `json:"elapsed"`
	Values    map[string]float64 `json:"values"`
	Fields    map[string]string  `json:"fields,omitempty"`
}

func newReport(ts time.Time, elapsed float64) Report {
	return Report{
		Timestamp: ts,
		Elapsed:   elapsed,
		Values:    make(map[string]float64),
		Fields:    make(map[string]string),
	}
}

// PercentKey names the share of time a collector spent in state.
func PercentKey(collector, state string) string {
	return "percent_" + collector + "_" + state + "_time"
}

// WeightedAverageKey names a collector's time-weighted average.
func WeightedAverageKey(collector string) string {
	return "wavg_" + collector
}

// Keys returns the value keys in sorted order.
func (r Report) Keys() []string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
