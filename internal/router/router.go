// Package router implements the cross-platform publish/subscribe fabric:
// platform -> channel -> subscribers, with per-(source, channel) FIFO
// ordering, ingress-id deduplication, and bounded per-subscriber
// backpressure.
package router

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/model"
)

// Subscriber receives messages for channels it is bound to. Identity is
// the adapter's own egress identity, used to suppress echo back to the
// originating adapter.
type Subscriber interface {
	Identity() string
	Deliver(msg model.ChatMessage) error
}

type subscription struct {
	sub   Subscriber
	queue chan model.ChatMessage
}

// Router is the pub/sub fabric. Subscriber sets are copy-on-write: the
// publisher always iterates a snapshot slice so mutation of the
// subscriber set never blocks publish.
type Router struct {
	mu          sync.Mutex
	subscribers map[string][]*subscription // channel name -> subscriptions
	queueDepth  int
	priorityBlock time.Duration

	dedupMu sync.Mutex
	dedup   map[string]time.Time
	dedupWindow time.Duration

	drops  map[string]int
	log    *zap.Logger

	onDrop func(channel string)
}

func New(queueDepth int, priorityBlock time.Duration, dedupWindow time.Duration, log *zap.Logger) *Router {
	return &Router{
		subscribers:   make(map[string][]*subscription),
		queueDepth:    queueDepth,
		priorityBlock: priorityBlock,
		dedup:         make(map[string]time.Time),
		dedupWindow:   dedupWindow,
		drops:         make(map[string]int),
		log:           log,
	}
}

// SetDropHook lets the metrics package observe backpressure drops without
// the router importing it directly.
func (r *Router) SetDropHook(fn func(channel string)) {
	r.onDrop = fn
}

// Subscribe binds a Subscriber to a channel. Copy-on-write: a fresh slice
// is built and swapped in under the lock so publishers reading the old
// slice concurrently are unaffected.
func (r *Router) Subscribe(channel string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.subscribers[channel]
	fresh := make([]*subscription, len(existing), len(existing)+1)
	copy(fresh, existing)
	fresh = append(fresh, &subscription{sub: sub, queue: make(chan model.ChatMessage, r.queueDepth)})
	r.subscribers[channel] = fresh

	go r.drain(channel, fresh[len(fresh)-1])
}

// Unsubscribe removes a Subscriber from a channel by identity.
func (r *Router) Unsubscribe(channel string, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.subscribers[channel]
	fresh := make([]*subscription, 0, len(existing))
	for _, s := range existing {
		if s.sub.Identity() != identity {
			fresh = append(fresh, s)
		} else {
			close(s.queue)
		}
	}
	r.subscribers[channel] = fresh
}

func (r *Router) drain(channel string, s *subscription) {
	for msg := range s.queue {
		if err := s.sub.Deliver(msg); err != nil {
			r.log.Warn("subscriber delivery failed",
				zap.String("channel", channel),
				zap.String("subscriber", s.sub.Identity()),
				zap.Error(err))
		}
	}
}

// Publish fans a message out to every current subscriber of its channel
// except the originating adapter, honoring ingress-id dedup and
// priority/best-effort backpressure.
func (r *Router) Publish(msg model.ChatMessage) {
	if r.seenRecently(msg.IngressID) {
		return
	}

	r.mu.Lock()
	subs := r.subscribers[msg.SourceChannel]
	r.mu.Unlock()

	for _, s := range subs {
		if s.sub.Identity() == msg.OriginAdapter {
			continue // never deliver back to the origin adapter
		}
		r.enqueue(s, msg)
	}
}

func (r *Router) enqueue(s *subscription, msg model.ChatMessage) {
	select {
	case s.queue <- msg:
		return
	default:
	}

	if !msg.Priority {
		r.recordDrop(msg.SourceChannel)
		return
	}

	// Priority messages block the publisher briefly rather than drop.
	timer := time.NewTimer(r.priorityBlock)
	defer timer.Stop()
	select {
	case s.queue <- msg:
	case <-timer.C:
		// There is no disk-backed overflow: a priority message still
		// blocked after priorityBlock is recorded as a drop.
		r.recordDrop(msg.SourceChannel)
	}
}

func (r *Router) recordDrop(channel string) {
	r.mu.Lock()
	r.drops[channel]++
	r.mu.Unlock()
	if r.onDrop != nil {
		r.onDrop(channel)
	}
}

func (r *Router) DropCount(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops[channel]
}

// seenRecently reports whether ingressID was published within the dedup
// window. Messages without an ingress id are never treated as duplicates.
func (r *Router) seenRecently(ingressID string) bool {
	if ingressID == "" {
		return false
	}
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	now := time.Now()
	for id, t := range r.dedup {
		if now.Sub(t) > r.dedupWindow {
			delete(r.dedup, id)
		}
	}
	if _, ok := r.dedup[ingressID]; ok {
		return true
	}
	r.dedup[ingressID] = now
	return false
}
