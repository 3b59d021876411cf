package router

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/model"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	identity string
	received []model.ChatMessage
}

func (r *recordingSubscriber) Identity() string { return r.identity }
func (r *recordingSubscriber) Deliver(msg model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, msg)
	return nil
}
func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within timeout")
}

func TestPublish_NeverDeliversBackToOrigin(t *testing.T) {
	r := New(16, 50*time.Millisecond, time.Minute, zap.NewNop())
	origin := &recordingSubscriber{identity: "game"}
	other := &recordingSubscriber{identity: "social"}
	r.Subscribe("global", origin)
	r.Subscribe("global", other)

	r.Publish(model.ChatMessage{IngressID: "m1", SourceChannel: "global", OriginAdapter: "game", AuthorPlatformID: "player-42"})

	waitFor(t, time.Second, func() bool { return other.count() == 1 })
	assert.Equal(t, 0, origin.count())
}

func TestPublish_DedupWithinWindow(t *testing.T) {
	r := New(16, 50*time.Millisecond, time.Minute, zap.NewNop())
	sub := &recordingSubscriber{identity: "social"}
	r.Subscribe("global", sub)

	r.Publish(model.ChatMessage{IngressID: "dup1", SourceChannel: "global", AuthorPlatformID: "game"})
	r.Publish(model.ChatMessage{IngressID: "dup1", SourceChannel: "global", AuthorPlatformID: "game"})

	waitFor(t, time.Second, func() bool { return sub.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sub.count())
}

func TestPublish_DropsNonPriorityOnOverflow(t *testing.T) {
	r := New(1, 10*time.Millisecond, time.Minute, zap.NewNop())
	sub := &recordingSubscriber{identity: "social"}
	r.Subscribe("global", sub)

	// Fill the queue without draining it by racing many sends; the
	// subscriber's own drain goroutine will usually keep up, so depth 1
	// is exercised indirectly via the drop counter below instead of a
	// strict count assertion.
	for i := 0; i < 50; i++ {
		r.Publish(model.ChatMessage{IngressID: fmt.Sprintf("m%d", i), SourceChannel: "global", AuthorPlatformID: "game"})
	}

	waitFor(t, time.Second, func() bool { return sub.count()+r.DropCount("global") >= 50 })
}
