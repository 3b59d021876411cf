// Package bridge implements the federated messaging bridge adapter: a
// gorilla/websocket client connection to a peer hub, with the reader
// and writer goroutine split adapted from the proxy host's TCP session
// handling, driving exponential-backoff reconnect between 1s and 60s.
package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/adapter"
	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/model"
)

var _ adapter.Adapter = (*Adapter)(nil)

const sendQueue = 128

// wireMessage is the bridge's minimal wire envelope.
type wireMessage struct {
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Text    string `json:"text"`
}

// Adapter is the adapter.Adapter implementation for one federated peer.
type Adapter struct {
	url         string
	formatter   *format.Formatter
	log         *zap.Logger
	dialer      websocket.Dialer
	minBackoff  time.Duration
	maxBackoff  time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	inbound func(model.ChatMessage)

	outQueue chan wireMessage
	closed   atomic.Bool
	closeCh  chan struct{}
}

// New dials url in a background reconnect loop, backing off between
// minBackoff and maxBackoff (reconnect_base_ms/reconnect_cap_ms) and
// bounding each dial attempt by dialTimeout.
func New(url string, formatter *format.Formatter, minBackoff, maxBackoff, dialTimeout time.Duration, log *zap.Logger) *Adapter {
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	a := &Adapter{
		url:        url,
		formatter:  formatter,
		log:        log,
		dialer:     websocket.Dialer{HandshakeTimeout: dialTimeout},
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		outQueue:   make(chan wireMessage, sendQueue),
		closeCh:    make(chan struct{}),
	}
	go a.connectLoop()
	return a
}

func (a *Adapter) Identity() string { return "bridge:" + a.url }

// connectLoop owns the reconnect lifecycle: dial, run reader and writer
// until either fails, then back off and retry, doubling the delay up to
// maxBackoff and resetting it after a connection survives long enough
// to be considered stable.
func (a *Adapter) connectLoop() {
	backoff := a.minBackoff
	for {
		select {
		case <-a.closeCh:
			return
		default:
		}

		conn, _, err := a.dialer.Dial(a.url, nil)
		if err != nil {
			a.log.Warn("bridge dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			if !a.sleep(backoff) {
				return
			}
			backoff = a.nextBackoff(backoff)
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()

		connectedAt := time.Now()
		done := make(chan struct{})
		go a.writeLoop(conn, done)
		a.readLoop(conn, done)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()

		if time.Since(connectedAt) > 10*backoff {
			backoff = a.minBackoff
		} else {
			backoff = a.nextBackoff(backoff)
		}

		select {
		case <-a.closeCh:
			return
		default:
		}
		if !a.sleep(backoff) {
			return
		}
	}
}

func (a *Adapter) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > a.maxBackoff {
		return a.maxBackoff
	}
	return next
}

func (a *Adapter) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.closeCh:
		return false
	}
}

func (a *Adapter) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			a.log.Debug("bridge read error", zap.Error(err))
			return
		}
		var wm wireMessage
		if err := json.Unmarshal(raw, &wm); err != nil {
			a.log.Warn("bridge received malformed message", zap.Error(err))
			continue
		}

		a.mu.Lock()
		fn := a.inbound
		a.mu.Unlock()
		if fn == nil {
			continue
		}
		fn(model.ChatMessage{
			IngressAt:        time.Now(),
			SourcePlatform:   "bridge",
			SourceChannel:    wm.Channel,
			OriginAdapter:    a.Identity(),
			AuthorPlatformID: wm.Author,
			RawText:          wm.Text,
			CanonicalText:    wm.Text,
		})
	}
}

func (a *Adapter) writeLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case wm := <-a.outQueue:
			if err := conn.WriteJSON(wm); err != nil {
				a.log.Debug("bridge write error", zap.Error(err))
				return
			}
		case <-done:
			return
		case <-a.closeCh:
			return
		}
	}
}

func (a *Adapter) SubscribeInbound(fn func(model.ChatMessage)) {
	a.mu.Lock()
	a.inbound = fn
	a.mu.Unlock()
}

func (a *Adapter) Send(channel string, rendered string) error {
	return a.enqueue(wireMessage{Channel: channel, Text: rendered})
}

func (a *Adapter) Announce(channel string, rendered string) error {
	return a.Send(channel, rendered)
}

func (a *Adapter) enqueue(wm wireMessage) error {
	select {
	case a.outQueue <- wm:
		return nil
	default:
		return fmt.Errorf("bridge: outbound queue full for %s", a.url)
	}
}

// Deliver satisfies router.Subscriber.
func (a *Adapter) Deliver(msg model.ChatMessage) error {
	authorName := msg.AuthorPlatformID
	if msg.Author != nil {
		authorName = msg.Author.DisplayName
	}
	rendered := a.formatter.Format(msg, authorName, model.RankCoordinate{})
	return a.Send(msg.SourceChannel, rendered)
}

// SyncRole is a no-op: federated peers manage their own role mappings.
func (a *Adapter) SyncRole(model.PlayerIdentity, string) error { return nil }

// Connected reports whether the adapter currently holds a live
// websocket connection.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

func (a *Adapter) Close() {
	if a.closed.CompareAndSwap(false, true) {
		close(a.closeCh)
		a.mu.Lock()
		if a.conn != nil {
			_ = a.conn.Close()
		}
		a.mu.Unlock()
	}
}
