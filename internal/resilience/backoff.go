package resilience

import (
	"math/rand/v2"
	"time"
)

// maxBackoff caps a single retry delay.
const maxBackoff = 10 * time.Second

// Backoff returns base doubled for every attempt after the first, capped at
// maxBackoff. jitter spreads the delay by up to that fraction either way.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	d = min(d, maxBackoff)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * min(jitter, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
