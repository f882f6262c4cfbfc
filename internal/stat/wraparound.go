package stat

import "codeberg.org/mutker/powerstatd/internal/logger"

// WrapTable maps microarchitecture names onto capacity classes and classes
// onto the value at which the hardware counter rolls over.
type WrapTable struct {
	Classes map[string]string
	Max     map[string]uint64
}

// Lookup returns the rollover value for arch. ok is false when the
// architecture or its class is unknown.
func (t WrapTable) Lookup(arch string) (uint64, bool) {
	class, ok := t.Classes[arch]
	if !ok {
		return 0, false
	}

	max, ok := t.Max[class]
	return max, ok
}

// WraparoundCounter accumulates a hardware counter that may silently reset.
// It is the only place that accepts non-monotonic raw input; the accumulated
// value never decreases.
type WraparoundCounter struct {
	name        string
	last        uint64
	accumulated uint64
	max         uint64
	hasMax      bool
}

// NewWraparoundCounter seeds the counter with its first raw read. Pass
// hasMax false when the rollover point is unknown.
func NewWraparoundCounter(name string, initial, max uint64, hasMax bool) *WraparoundCounter {
	return &WraparoundCounter{
		name:        name,
		last:        initial,
		accumulated: initial,
		max:         max,
		hasMax:      hasMax,
	}
}

// Update folds a new raw read into the accumulated value and returns the
// delta that was added.
func (w *WraparoundCounter) Update(current uint64) uint64 {
	var delta uint64

	switch {
	case current >= w.last:
		delta = current - w.last
	case w.hasMax && w.last <= w.max:
		delta = current + (w.max - w.last)
		logger.Debug().
			Str("counter", w.name).
			Uint64("last", w.last).
			Uint64("current", current).
			Uint64("max", w.max).
			Msg("Counter wrapped")
	default:
		// Multiple wraps between reads are indistinguishable from one.
		delta = current
		logger.Warn().
			Str("counter", w.name).
			Uint64("last", w.last).
			Uint64("current", current).
			Msg("Counter wrapped with unknown maximum, residency may be under-counted")
	}

	w.accumulated += delta
	w.last = current

	return delta
}

// Accumulated returns the monotonic running total.
func (w *WraparoundCounter) Accumulated() uint64 {
	return w.accumulated
}

// Last returns the most recent raw read.
func (w *WraparoundCounter) Last() uint64 {
	return w.last
}
