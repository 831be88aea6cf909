package counter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCounter() (*EpochCounter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(60*time.Second, WithClock(clock)), clock
}

func TestFirstSampleIsZero(t *testing.T) {
	for _, v := range []uint64{0, 1, 900, 1 << 62} {
		c, _ := newTestCounter()
		assert.Equal(t, 0.0, c.Process(v), "first sample %d", v)
	}
}

func TestMonotonicSamples(t *testing.T) {
	c, clock := newTestCounter()

	samples := []struct {
		value    uint64
		elapsed  time.Duration
		expected float64
	}{
		{value: 100},
		{value: 160, elapsed: 60 * time.Second, expected: 1},
		{value: 160, elapsed: 10 * time.Second, expected: 0},
		{value: 260, elapsed: 4 * time.Second, expected: 25},
		{value: 261, elapsed: 500 * time.Millisecond, expected: 2},
	}

	for i, s := range samples {
		clock.Advance(s.elapsed)
		rate := c.Process(s.value)
		assert.GreaterOrEqual(t, rate, 0.0)
		assert.InDelta(t, s.expected, rate, 1e-9, "sample %d", i)
	}
}

func TestCounterReset(t *testing.T) {
	c, clock := newTestCounter()

	c.Process(1000)
	clock.Advance(time.Second)
	assert.Equal(t, 0.0, c.Process(10), "reset must not produce a negative rate")

	// the reset sample is the new baseline
	clock.Advance(2 * time.Second)
	assert.InDelta(t, 5.0, c.Process(20), 1e-9)
}

func TestSameInstantUsesInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := New(10*time.Second, WithClock(clock))

	c.Process(0)
	assert.InDelta(t, 5.0, c.Process(50), 1e-9)
}

func TestHappyPathRates(t *testing.T) {
	processed, clock := newTestCounter()
	failed := New(60*time.Second, WithClock(clock))

	processed.Process(900)
	failed.Process(2)
	clock.Advance(time.Second)

	assert.InDelta(t, 100.0, processed.Process(1000), 1e-9)
	assert.InDelta(t, 3.0, failed.Process(5), 1e-9)
}
