// internal/notify/dispatch/backoff_test.go
package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Schedule(t *testing.T) {
	b := NewBackoff([]int{60000, 300000, 1800000, 7200000}, 0)

	assert.Equal(t, time.Minute, b.Delay(1))
	assert.Equal(t, 5*time.Minute, b.Delay(2))
	assert.Equal(t, 30*time.Minute, b.Delay(3))
	assert.Equal(t, 2*time.Hour, b.Delay(4))
	// Past the schedule, the last step is the cap.
	assert.Equal(t, 2*time.Hour, b.Delay(9))
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff([]int{60000}, 0.2)

	for i := 0; i < 200; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 48*time.Second)
		assert.LessOrEqual(t, d, 72*time.Second)
	}
}

func TestBackoff_EmptyStepsDefault(t *testing.T) {
	b := NewBackoff(nil, 0)
	assert.Equal(t, time.Minute, b.Delay(1))
}
