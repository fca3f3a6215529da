package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		b := New("sink", WithFailureThreshold(3))

		assert.Equal(t, Transition{}, b.RecordFailure())
		assert.Equal(t, Transition{}, b.RecordFailure())
		assert.Equal(t, Transition{Opened: true}, b.RecordFailure())
		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.Allow())
	})

	t.Run("success resets the failure run", func(t *testing.T) {
		b := New("sink", WithFailureThreshold(2))

		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("probe after cooldown closes on success", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(0, 0)}
		b := New("sink", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.now))

		b.RecordFailure()
		assert.False(t, b.Allow())

		clock.t = clock.t.Add(time.Second)
		assert.True(t, b.Allow(), "cooldown elapsed admits a probe")
		assert.Equal(t, StateHalfOpen, b.State())
		assert.False(t, b.Allow(), "only one probe at a time")

		assert.Equal(t, Transition{Closed: true}, b.RecordSuccess())
		assert.True(t, b.Allow())
	})

	t.Run("failed probe reopens for another cooldown", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(0, 0)}
		b := New("sink", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.now))

		b.RecordFailure()
		clock.t = clock.t.Add(time.Second)
		assert.True(t, b.Allow())

		b.RecordFailure()
		assert.Equal(t, StateOpen, b.State())
		clock.t = clock.t.Add(500 * time.Millisecond)
		assert.False(t, b.Allow())
	})

	t.Run("state names", func(t *testing.T) {
		assert.Equal(t, "closed", StateClosed.String())
		assert.Equal(t, "open", StateOpen.String())
		assert.Equal(t, "half_open", StateHalfOpen.String())
	})
}
