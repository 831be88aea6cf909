// Package counter turns cumulative counters into per-second rates.
package counter

import "time"

// Clock allows deterministic testing
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock
type RealClock struct{}

// Now returns time.Now()
func (RealClock) Now() time.Time { return time.Now() }

// EpochCounter converts successive samples of a monotonically increasing
// counter into the rate implied since the previous sample.
//
// EpochCounter is not safe for concurrent use. Each agent owns its counters
// and serializes its polls.
type EpochCounter struct {
	clock    Clock
	interval time.Duration

	lastValue uint64
	lastTime  time.Time
	primed    bool
}

// Option configures an EpochCounter
type Option func(*EpochCounter)

// WithClock sets the clock used to timestamp samples
func WithClock(c Clock) Option {
	return func(e *EpochCounter) {
		e.clock = c
	}
}

// New creates a counter. interval is the expected poll interval, used as the
// elapsed time when two samples land on the same clock reading.
func New(interval time.Duration, opts ...Option) *EpochCounter {
	e := &EpochCounter{
		clock:    RealClock{},
		interval: interval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process records value and returns the rate per second since the previous
// sample. The first sample and any sample lower than its predecessor (counter
// reset) yield 0. The sample always becomes the new baseline.
func (e *EpochCounter) Process(value uint64) float64 {
	now := e.clock.Now()
	defer func() {
		e.lastValue = value
		e.lastTime = now
		e.primed = true
	}()

	if !e.primed || value < e.lastValue {
		return 0
	}

	elapsed := now.Sub(e.lastTime)
	if elapsed <= 0 {
		elapsed = e.interval
	}
	if elapsed <= 0 {
		return 0
	}

	return float64(value-e.lastValue) / elapsed.Seconds()
}
