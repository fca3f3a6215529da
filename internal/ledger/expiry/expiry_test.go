package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadlineBoundaries(t *testing.T) {
	deadline := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	before := deadline.Add(-time.Nanosecond)
	after := deadline.Add(time.Nanosecond)

	tests := []struct {
		name      string
		now       time.Time
		expiresAt *time.Time
		canGrant  bool
		lapsed    bool
	}{
		{"no deadline", after, nil, true, false},
		{"before deadline", before, &deadline, true, false},
		{"at deadline", deadline, &deadline, false, false},
		{"after deadline", after, &deadline, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canGrant, CanGrant(tt.now, tt.expiresAt))
			assert.Equal(t, tt.lapsed, IsLapsed(tt.now, tt.expiresAt))
		})
	}
}

func TestRemaining(t *testing.T) {
	deadline := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	left, ok := Remaining(deadline.Add(-time.Minute), &deadline)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, left)

	left, ok = Remaining(deadline.Add(time.Minute), &deadline)
	assert.True(t, ok)
	assert.Zero(t, left)

	_, ok = Remaining(deadline, nil)
	assert.False(t, ok)
}
