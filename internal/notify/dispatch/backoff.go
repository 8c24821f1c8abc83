// internal/notify/dispatch/backoff.go
package dispatch

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before the next retry from a configured step
// schedule. Attempts past the last step reuse it as the cap.
type Backoff struct {
	steps  []time.Duration
	jitter float64 // fraction of the step applied as +/- random spread
}

func NewBackoff(stepsMillis []int, jitter float64) *Backoff {
	steps := make([]time.Duration, 0, len(stepsMillis))
	for _, ms := range stepsMillis {
		steps = append(steps, time.Duration(ms)*time.Millisecond)
	}
	if len(steps) == 0 {
		steps = []time.Duration{time.Minute}
	}
	return &Backoff{steps: steps, jitter: jitter}
}

// Delay returns the wait before retry number attempt (1-based: attempt 1
// already happened, the result schedules attempt 2).
func (b *Backoff) Delay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.steps) {
		idx = len(b.steps) - 1
	}
	step := b.steps[idx]
	if b.jitter <= 0 {
		return step
	}

	spread := float64(step) * b.jitter
	delta := (rand.Float64()*2 - 1) * spread
	d := time.Duration(float64(step) + delta)
	if d < 0 {
		d = 0
	}
	return d
}
