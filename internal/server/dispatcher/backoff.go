package dispatcher

import (
	"math/rand/v2"
	"time"
)

// nextDelay computes the retry delay for a row that has failed attempt
// times: base doubled per attempt, capped, with ±25% jitter so requeued
// rows from one outage do not thunder back in lockstep.
func nextDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			break
		}
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}

	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}
