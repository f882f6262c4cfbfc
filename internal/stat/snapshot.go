// Package stat turns raw accumulated-time counters into percentage-of-time
// distributions across refresh cycles.
package stat

import (
	"sort"
	"strconv"
)

// Snapshot maps a state name (a frequency, a C-state label, ...) to the
// accumulated time spent in it. Units are whatever the collector reads.
type Snapshot map[string]float64

// Distribution maps a state name to its share of sampled time in [0, 100].
type Distribution map[string]float64

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

// Keys returns the state names in s, sorted.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Total sums every value whose key is not in exclude.
func (s Snapshot) Total(exclude map[string]struct{}) float64 {
	var total float64
	for k, v := range s {
		if _, skip := exclude[k]; skip {
			continue
		}
		total += v
	}

	return total
}

// Add accumulates v into key.
func (s Snapshot) Add(key string, v float64) {
	s[key] += v
}

// Diff subtracts previous from current key by key. A key missing from
// previous counts as zero there, so states that appear mid-run are kept.
func Diff(current, previous Snapshot) Snapshot {
	out := make(Snapshot, len(current))
	for k, v := range current {
		out[k] = v - previous[k]
	}

	return out
}

// ToPercent normalizes raw over the total of its non-excluded keys. Excluded
// keys are reported against the same total but do not contribute to it. When
// the total is zero every key is present with value 0.
func ToPercent(raw Snapshot, exclude map[string]struct{}) Distribution {
	out := make(Distribution, len(raw))

	total := raw.Total(exclude)
	if total == 0 {
		for k := range raw {
			out[k] = 0
		}
		return out
	}

	for k, v := range raw {
		out[k] = 100 * v / total
	}

	return out
}

// WeightedAverage returns Σ(key × value) / Σ(value) over keys that parse as
// numbers. ok is false when nothing numeric was sampled.
func WeightedAverage(raw Snapshot) (avg float64, ok bool) {
	var weighted, total float64
	for k, v := range raw {
		n, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		weighted += n * v
		total += v
	}

	if total == 0 {
		return 0, false
	}

	return weighted / total, true
}
