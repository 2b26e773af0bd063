package stream

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter band applied to every backoff delay. The spread desynchronizes
// retry storms across many open clients.
const (
	jitterMin = 1.10
	jitterMax = 1.30
)

// backoffPolicy computes reconnect delays: base doubles per consecutive
// error, capped at max, multiplied by uniform jitter in [jitterMin, jitterMax].
type backoffPolicy struct {
	base time.Duration
	max  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func newBackoffPolicy(base, max time.Duration) *backoffPolicy {
	return &backoffPolicy{
		base: base,
		max:  max,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// delay returns the wait before retry number n (n >= 1; the first retry
// waits ~base). The final value never exceeds max.
func (p *backoffPolicy) delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	d := p.base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.max {
			d = p.max
			break
		}
	}

	p.mu.Lock()
	f := jitterMin + (jitterMax-jitterMin)*p.rng.Float64()
	p.mu.Unlock()

	jittered := time.Duration(float64(d) * f)
	if jittered > p.max {
		jittered = p.max
	}
	return jittered
}

// retryState tracks the error burst counter. Bursts separated by a quiet
// period longer than the stability window do not accumulate.
type retryState struct {
	errorCount int
	lastError  time.Time
}

// record notes a failure at now and returns the updated count.
func (r *retryState) record(now time.Time, stabilityWindow time.Duration) int {
	if !r.lastError.IsZero() && now.Sub(r.lastError) > stabilityWindow {
		r.errorCount = 0
	}
	r.errorCount++
	r.lastError = now
	return r.errorCount
}

// reset clears the counter after a successful open.
func (r *retryState) reset() {
	r.errorCount = 0
}
