package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	clock := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	l := newRateLimiter(1, 2)
	l.now = func() time.Time { return clock }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.allow(ip))
	}
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"), "burst of 2 spent")

	// a bucket is only dropped once it has refilled to burst
	clock = clock.Add(time.Second)
	assert.Equal(t, 0, l.sweep())
	assert.True(t, l.allow("10.0.0.3"))

	clock = clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 2, l.sweep())
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "10.0.0.3")

	// a swept caller starts again with a full bucket
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	l := newRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("10.0.0.1"))
	}
	assert.Empty(t, l.buckets)
	assert.Equal(t, 0, l.sweep())

	var none *rateLimiter
	assert.True(t, none.allow("10.0.0.1"))
	assert.Equal(t, 0, none.sweep())
}
