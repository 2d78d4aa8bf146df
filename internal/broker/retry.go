package broker

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy decides whether a timed-out or failed attempt is resubmitted.
// Count is the number of retries after the first attempt.
type RetryPolicy struct {
	Count  int
	Delay  time.Duration
	Jitter time.Duration
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// Decide reports whether attempt (0-based) may be retried and how long to
// wait before resubmitting it.
func (p RetryPolicy) Decide(attempt int) (bool, time.Duration) {
	if attempt >= p.Count {
		return false, 0
	}
	return true, p.NextDelay()
}

// NextDelay returns Delay shifted by a uniform offset in [-Jitter, +Jitter],
// clamped at zero.
func (p RetryPolicy) NextDelay() time.Duration {
	d := p.Delay
	if p.Jitter > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration((r()*2 - 1) * float64(p.Jitter))
	}
	if d < 0 {
		return 0
	}
	return d
}
