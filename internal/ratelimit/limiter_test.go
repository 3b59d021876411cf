package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsume_AllowsUpToLimitThenDenies(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		v := l.consumeAt("u1", time.Hour, 3, base.Add(time.Duration(i)*time.Minute))
		assert.True(t, v.Allowed, "attempt %d should be allowed", i)
	}

	v := l.consumeAt("u1", time.Hour, 3, base.Add(4*time.Minute))
	assert.False(t, v.Allowed)
	assert.Greater(t, v.RetryAfter, time.Duration(0))
}

func TestConsume_WindowSlidesOutOldHits(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)

	l.consumeAt("u2", time.Hour, 1, base)
	v := l.consumeAt("u2", time.Hour, 1, base.Add(61*time.Minute))
	assert.True(t, v.Allowed, "hit outside the window should have been trimmed")
}

func TestConsume_DistinctKeysDoNotInterfere(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)

	l.consumeAt("a", time.Hour, 1, base)
	v := l.consumeAt("b", time.Hour, 1, base)
	assert.True(t, v.Allowed)
}

func TestUncharge_RemovesOnlyMostRecentHit(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)

	l.consumeAt("u3", time.Hour, 2, base)
	l.consumeAt("u3", time.Hour, 2, base.Add(time.Minute))
	l.Uncharge("u3")

	// The first hit is still charged, so a second attempt is allowed but
	// a third is denied.
	v := l.consumeAt("u3", time.Hour, 2, base.Add(2*time.Minute))
	assert.True(t, v.Allowed)
	v = l.consumeAt("u3", time.Hour, 2, base.Add(3*time.Minute))
	assert.False(t, v.Allowed)
}

func TestUncharge_OnUnknownKeyIsNoop(t *testing.T) {
	l := New()
	assert.NotPanics(t, func() { l.Uncharge("never-consumed") })
}

func TestReset_ClearsEntireBucket(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)

	l.consumeAt("u4", time.Hour, 1, base)
	l.Reset("u4")

	v := l.consumeAt("u4", time.Hour, 1, base.Add(time.Minute))
	assert.True(t, v.Allowed)
}
