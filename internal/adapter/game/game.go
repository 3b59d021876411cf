// Package game implements the in-process adapter boundary to the
// proxy's embedded game server: a Go interface rather than a network
// socket, since the packet plumbing itself is a different concern. The
// per-player delivery queue (one drain goroutine per player, dropping
// sends when the queue is full) is adapted from the host process's
// session reader/writer goroutine split.
package game

import (
	"sync"

	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/adapter"
	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/model"
)

var _ adapter.Adapter = (*Adapter)(nil)

// HostConn is the boundary to the embedded game server: whatever sends
// a rendered chat line to one connected player. Implemented by the
// proxy host process; this package only depends on the interface.
type HostConn interface {
	DeliverToPlayer(playerID [16]byte, rendered string) error
	DeliverToChannel(channel string, rendered string) error
	RankOf(playerID [16]byte) model.RankCoordinate
}

const outboundQueueDepth = 64

// playerQueue serializes delivery to one player and coalesces adjacent
// sends of identical text (a common burst shape when the same system
// line is queued for multiple recipients in the same tick).
type playerQueue struct {
	ch       chan string
	mu       sync.Mutex
	lastText string
	closeCh  chan struct{}
	once     sync.Once
}

func newPlayerQueue(playerID [16]byte, host HostConn, log *zap.Logger) *playerQueue {
	q := &playerQueue{ch: make(chan string, outboundQueueDepth), closeCh: make(chan struct{})}
	go q.drain(playerID, host, log)
	return q
}

func (q *playerQueue) drain(playerID [16]byte, host HostConn, log *zap.Logger) {
	for {
		select {
		case text := <-q.ch:
			if err := host.DeliverToPlayer(playerID, text); err != nil {
				log.Debug("game delivery failed", zap.Error(err))
			}
		case <-q.closeCh:
			return
		}
	}
}

// enqueue drops the send if it is an exact repeat of the last queued
// text and the queue has not yet drained it (adjacent-send coalescing),
// otherwise queues it, disconnecting backpressure by dropping on a full
// queue rather than blocking the caller (the host's own dispatch loop
// must never stall on a single slow player).
func (q *playerQueue) enqueue(text string, log *zap.Logger) {
	q.mu.Lock()
	if text == q.lastText && len(q.ch) > 0 {
		q.mu.Unlock()
		return
	}
	q.lastText = text
	q.mu.Unlock()

	select {
	case q.ch <- text:
	default:
		log.Warn("game adapter outbound queue full, dropping message")
	}
}

func (q *playerQueue) close() {
	q.once.Do(func() { close(q.closeCh) })
}

// Adapter is the adapter.Adapter implementation for the embedded game
// host.
type Adapter struct {
	host      HostConn
	formatter *format.Formatter
	log       *zap.Logger

	mu      sync.Mutex
	queues  map[[16]byte]*playerQueue
	inbound func(model.ChatMessage)
}

func New(host HostConn, formatter *format.Formatter, log *zap.Logger) *Adapter {
	return &Adapter{host: host, formatter: formatter, log: log, queues: make(map[[16]byte]*playerQueue)}
}

func (a *Adapter) Identity() string { return "game" }

func (a *Adapter) Send(channel string, rendered string) error {
	return a.host.DeliverToChannel(channel, rendered)
}

func (a *Adapter) Announce(channel string, rendered string) error {
	return a.host.DeliverToChannel(channel, rendered)
}

// SendToPlayer routes through the per-player coalescing queue rather
// than Send, delivering to one player instead of a channel.
func (a *Adapter) SendToPlayer(playerID [16]byte, rendered string) {
	a.queueFor(playerID).enqueue(rendered, a.log)
}

func (a *Adapter) queueFor(playerID [16]byte) *playerQueue {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.queues[playerID]
	if !ok {
		q = newPlayerQueue(playerID, a.host, a.log)
		a.queues[playerID] = q
	}
	return q
}

// DropPlayer closes and releases the delivery queue for a disconnected
// player.
func (a *Adapter) DropPlayer(playerID [16]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if q, ok := a.queues[playerID]; ok {
		q.close()
		delete(a.queues, playerID)
	}
}

func (a *Adapter) SubscribeInbound(fn func(model.ChatMessage)) {
	a.mu.Lock()
	a.inbound = fn
	a.mu.Unlock()
}

// Deliver satisfies router.Subscriber: the host pushes raw ChatMessages
// to IngestFromHost, which invokes the registered inbound callback;
// Deliver handles the router's outbound direction into the game world.
func (a *Adapter) Deliver(msg model.ChatMessage) error {
	rank := model.RankCoordinate{}
	if msg.Author != nil {
		rank = a.host.RankOf(msg.Author.ID)
	}
	authorName := msg.AuthorPlatformID
	if msg.Author != nil {
		authorName = msg.Author.DisplayName
	}
	rendered := a.formatter.Format(msg, authorName, rank)
	return a.Send(msg.SourceChannel, rendered)
}

// IngestFromHost is called by the host process for every chat line a
// connected player sends; it forwards to the registered inbound
// callback, if any has been wired by the router bootstrap.
func (a *Adapter) IngestFromHost(msg model.ChatMessage) {
	msg.OriginAdapter = a.Identity()
	a.mu.Lock()
	fn := a.inbound
	a.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// SyncRole is a no-op: the game client has no analogous role concept,
// rank is conveyed entirely through the formatter's prefix/color tag.
func (a *Adapter) SyncRole(model.PlayerIdentity, string) error { return nil }
