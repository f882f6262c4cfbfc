package disk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/stat"
)

// DefaultPollInterval is how often the probe queries the disk.
const DefaultPollInterval = 5 * time.Second

// State is the lifecycle of a Probe's sampling loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Probe.
type Option func(*Probe)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces time.Now for residency accounting.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) {
		p.now = now
	}
}

// Probe samples a disk's power mode in the background and accumulates
// seconds spent in each mode.
type Probe struct {
	transport Transport
	interval  time.Duration
	now       func() time.Time
	log       logger.Logger

	state atomic.Int32

	mu        sync.Mutex
	residency stat.Snapshot
	err       error

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewProbe creates an idle probe over t.
func NewProbe(t Transport, opts ...Option) *Probe {
	p := &Probe{
		transport: t,
		interval:  DefaultPollInterval,
		now:       time.Now,
		log:       logger.New("disk"),
		residency: make(stat.Snapshot),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start launches the sampling loop. It has no effect unless the probe is
// idle. Cancelling ctx stops the loop.
func (p *Probe) Start(ctx context.Context) {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return
	}

	go p.run(ctx)
}

func (p *Probe) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := p.now()
	for {
		select {
		case <-ctx.Done():
			p.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
			return
		case <-p.stop:
			p.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
			return
		case <-ticker.C:
		}

		// A stop that raced the tick wins.
		select {
		case <-p.stop:
			p.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
			return
		default:
		}

		if State(p.state.Load()) != StateRunning {
			return
		}

		mode, err := CheckPowerMode(p.transport)
		now := p.now()
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			p.state.Store(int32(StateError))

			if e, ok := err.(errors.Error); ok {
				p.log.ErrorWithCode(e).Msg("Disk power mode probe stopped")
			} else {
				p.log.Error().Err(err).Msg("Disk power mode probe stopped")
			}
			return
		}

		p.mu.Lock()
		p.residency.Add(string(mode), now.Sub(last).Seconds())
		p.mu.Unlock()
		last = now
	}
}

// State returns the current lifecycle state.
func (p *Probe) State() State {
	return State(p.state.Load())
}

// Stop ends a running loop and waits up to twice the poll interval for it
// to exit.
func (p *Probe) Stop() error {
	p.stopOnce.Do(func() {
		if !p.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			close(p.stop)
		} else {
			close(p.done)
		}
	})

	select {
	case <-p.done:
		return nil
	case <-time.After(2 * p.interval):
		return errors.New().WithData(ErrJoinTimeout, p.interval.String())
	}
}

// Stopped reports whether the sampling loop has exited.
func (p *Probe) Stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result stops the probe and returns the share of time spent in each mode.
func (p *Probe) Result() stat.Distribution {
	if err := p.Stop(); err != nil {
		p.log.Warn().Err(err).Msg("Disk probe did not stop in time")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return stat.ToPercent(p.residency, nil)
}

// Residency returns the accumulated seconds per mode.
func (p *Probe) Residency() stat.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.residency.Clone()
}

// Err returns the protocol error that stopped the loop, if any.
func (p *Probe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}
