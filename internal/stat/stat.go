package stat

// ReadFunc returns the collector's current raw counters.
type ReadFunc func() Snapshot

// WeightedAverageFunc computes a collector-specific weighted average from the
// last diffed snapshot.
type WeightedAverageFunc func(diffed Snapshot) (float64, bool)

// Option configures a Stat.
type Option func(*Stat)

// WithIncremental selects whether Refresh diffs against the previous read
// (the default) or normalizes each read as-is.
func WithIncremental(incremental bool) Option {
	return func(s *Stat) {
		s.incremental = incremental
	}
}

// WithExcluded keeps keys out of the percentage denominator.
func WithExcluded(keys ...string) Option {
	return func(s *Stat) {
		for _, k := range keys {
			s.excluded[k] = struct{}{}
		}
	}
}

// WithNumericKeys marks the state names as numbers, which enables the
// automatic weighted average.
func WithNumericKeys() Option {
	return func(s *Stat) {
		s.numeric = true
	}
}

// WithWeightedAverage installs a weighted average for collectors whose keys
// are not numeric or whose driver exposes no residency table.
func WithWeightedAverage(fn WeightedAverageFunc) Option {
	return func(s *Stat) {
		s.wavg = fn
	}
}

// Stat holds one raw snapshot and converts successive reads into
// distributions. It is not safe for concurrent Refresh calls.
type Stat struct {
	name        string
	read        ReadFunc
	incremental bool
	numeric     bool
	excluded    map[string]struct{}
	wavg        WeightedAverageFunc

	previous Snapshot
	last     Snapshot
}

// New creates a Stat and takes its first read.
func New(name string, read ReadFunc, opts ...Option) *Stat {
	s := &Stat{
		name:        name,
		read:        read,
		incremental: true,
		excluded:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.previous = s.readSnapshot()
	s.last = make(Snapshot)

	return s
}

func (s *Stat) readSnapshot() Snapshot {
	snap := s.read()
	if snap == nil {
		return make(Snapshot)
	}

	return snap
}

// Name returns the collector name used in report keys.
func (s *Stat) Name() string {
	return s.name
}

// Refresh reads the counters, diffs them against the previous read when
// incremental, stores the new read and returns the normalized result.
func (s *Stat) Refresh() Distribution {
	current := s.readSnapshot()

	diffed := current
	if s.incremental {
		diffed = Diff(current, s.previous)
	}

	s.previous = current
	s.last = diffed

	return ToPercent(diffed, s.excluded)
}

// Last returns the un-normalized values behind the most recent Refresh.
func (s *Stat) Last() Snapshot {
	return s.last
}

// Total sums the denominator keys of the most recent Refresh.
func (s *Stat) Total() float64 {
	return s.last.Total(s.excluded)
}

// SupportsAutomaticWeightedAverage reports whether state names are numeric.
func (s *Stat) SupportsAutomaticWeightedAverage() bool {
	return s.numeric
}

// WeightedAverage returns the time-weighted mean of the most recent Refresh.
// ok is false when the collector defines none or nothing was sampled.
func (s *Stat) WeightedAverage() (float64, bool) {
	if s.numeric {
		if avg, ok := WeightedAverage(s.last); ok {
			return avg, true
		}
	}

	if s.wavg != nil {
		return s.wavg(s.last)
	}

	return 0, false
}
