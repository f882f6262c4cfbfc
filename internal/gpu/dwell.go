package gpu

import "codeberg.org/mutker/powerstatd/internal/stat"

// dwell accumulates time spent in each state from a sequence of
// "now in state X" observations. Time between two observations is credited
// to the earlier state.
type dwell struct {
	state     string
	since     float64
	residency stat.Snapshot
}

func newDwell(state string, since float64) *dwell {
	return &dwell{
		state:     state,
		since:     since,
		residency: stat.Snapshot{state: 0},
	}
}

// advance closes the open interval at ts and switches to next. Observations
// at or before the open interval start only switch the state; out-of-order
// events are not reordered.
func (d *dwell) advance(ts float64, next string) {
	if ts > d.since {
		d.residency.Add(d.state, ts-d.since)
		d.since = ts
	}

	d.state = next
	if _, ok := d.residency[next]; !ok {
		d.residency[next] = 0
	}
}

func (d *dwell) snapshot() stat.Snapshot {
	return d.residency.Clone()
}
