package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_DoublesUpToCap(t *testing.T) {
	a := &Adapter{minBackoff: time.Second, maxBackoff: 60 * time.Second}
	d := a.minBackoff
	for i := 0; i < 10; i++ {
		d = a.nextBackoff(d)
		assert.LessOrEqual(t, d, a.maxBackoff)
	}
	assert.Equal(t, a.maxBackoff, d)
}

func TestNextBackoff_StartsAtMinBackoff(t *testing.T) {
	a := &Adapter{minBackoff: time.Second, maxBackoff: 60 * time.Second}
	assert.Equal(t, 2*time.Second, a.nextBackoff(a.minBackoff))
}

func TestEnqueue_ReturnsErrorWhenQueueFull(t *testing.T) {
	a := &Adapter{outQueue: make(chan wireMessage, 1), closeCh: make(chan struct{})}
	require := assert.New(t)
	require.NoError(a.enqueue(wireMessage{Text: "one"}))
	require.Error(a.enqueue(wireMessage{Text: "two"}))
}
