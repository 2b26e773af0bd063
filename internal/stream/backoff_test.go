package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	max := 2 * time.Second
	p := newBackoffPolicy(base, max)

	for n := 1; n <= 6; n++ {
		raw := base << (n - 1)
		if raw > max {
			raw = max
		}
		for i := 0; i < 50; i++ {
			d := p.delay(n)
			lower := time.Duration(float64(raw) * jitterMin)
			upper := time.Duration(float64(raw) * jitterMax)
			if upper > max {
				upper = max
			}
			if lower > max {
				lower = max
			}
			assert.GreaterOrEqual(t, d, lower, "attempt %d", n)
			assert.LessOrEqual(t, d, upper, "attempt %d", n)
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	p := newBackoffPolicy(time.Second, 5*time.Second)
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, p.delay(30), 5*time.Second)
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	t.Parallel()

	p := newBackoffPolicy(100*time.Millisecond, time.Hour)
	// Jitter is at most 1.3x, so consecutive attempts must still be ordered:
	// min(n+1) = 2^n*base*1.1 > 2^(n-1)*base*1.3 = max(n).
	for n := 1; n < 8; n++ {
		assert.Greater(t, p.delay(n+1), p.delay(n))
	}
}

func TestRetryStateBurstAccumulates(t *testing.T) {
	t.Parallel()

	var r retryState
	window := 30 * time.Second
	now := time.Now()

	// Three errors 500ms apart, all inside the stability window.
	assert.Equal(t, 1, r.record(now, window))
	assert.Equal(t, 2, r.record(now.Add(500*time.Millisecond), window))
	assert.Equal(t, 3, r.record(now.Add(time.Second), window))

	// Successful open resets to zero.
	r.reset()
	assert.Equal(t, 0, r.errorCount)
}

func TestRetryStateQuietPeriodResets(t *testing.T) {
	t.Parallel()

	var r retryState
	window := 10 * time.Second
	now := time.Now()

	r.record(now, window)
	r.record(now.Add(time.Second), window)

	// A quiet period longer than the window starts a fresh burst.
	assert.Equal(t, 1, r.record(now.Add(15*time.Second), window))
}
