// Package persistence implements the hot/warm/durable tiering for
// PlayerXPRecord: an in-process map for every read and write in the hot
// path, a shared Redis tier for cross-instance visibility, and a
// write-through pgx save on every Save call. A circuit breaker degrades
// to hot-map-only writes (bounded by a backlog cap) when the durable
// store is unavailable, publishing PersistenceDegraded on each
// transition; the backlog then drains in batched transactions once the
// store recovers.
package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/cache"
	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/model"
)

// DurableStore is the pgx-backed tier; XPRepo satisfies it.
type DurableStore interface {
	Load(ctx context.Context, player model.PlayerIdentity) (model.PlayerXPRecord, error)
	Save(ctx context.Context, record model.PlayerXPRecord) error
}

// batchSaver is implemented by durable stores that can flush several
// records in one transaction; XPRepo satisfies it. Backlog flushing
// falls back to per-record Save when the durable store doesn't.
type batchSaver interface {
	BatchSave(ctx context.Context, records []model.PlayerXPRecord) error
}

const sharedTTL = 30 * time.Minute

type playerMutex struct {
	mu sync.Mutex
}

// Coordinator is the Store implementation the XP accumulator is built
// against.
type Coordinator struct {
	hot        sync.Map // [16]byte -> model.PlayerXPRecord
	locks      sync.Map // [16]byte -> *playerMutex
	shared     cache.Client
	durable    DurableStore
	bus        *domainevent.Bus
	log        *zap.Logger

	mu              sync.Mutex
	degraded        bool
	backlog         map[[16]byte]model.PlayerXPRecord
	backlogCapacity int
	batchSize       int
	failureStreak   int
	openAfter       int
}

func New(shared cache.Client, durable DurableStore, bus *domainevent.Bus, backlogCapacity, batchSize int, log *zap.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Coordinator{
		shared:          shared,
		durable:         durable,
		bus:             bus,
		log:             log,
		backlog:         make(map[[16]byte]model.PlayerXPRecord),
		backlogCapacity: backlogCapacity,
		batchSize:       batchSize,
		openAfter:       3,
	}
}

func (c *Coordinator) lockFor(id [16]byte) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(id, &playerMutex{})
	return &v.(*playerMutex).mu
}

// Load serves from the hot map first, then the durable store, storing
// a durable hit in the hot map. The shared cache holds only a presence
// marker and is not read here.
func (c *Coordinator) Load(player model.PlayerIdentity) (model.PlayerXPRecord, error) {
	lock := c.lockFor(player.ID)
	lock.Lock()
	defer lock.Unlock()

	if v, ok := c.hot.Load(player.ID); ok {
		return v.(model.PlayerXPRecord), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	record, err := c.durable.Load(ctx, player)
	if err != nil {
		c.recordFailure()
		return model.PlayerXPRecord{Player: player}, nil
	}
	c.recordSuccess()
	c.hot.Store(player.ID, record)
	return record, nil
}

// Save writes through to the hot map unconditionally, then attempts the
// durable store; on failure the record enters a bounded backlog instead
// of being lost, and the coordinator degrades once openAfter consecutive
// failures accumulate.
func (c *Coordinator) Save(record model.PlayerXPRecord) error {
	lock := c.lockFor(record.Player.ID)
	lock.Lock()
	defer lock.Unlock()

	c.hot.Store(record.Player.ID, record)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if c.shared != nil {
		_ = c.shared.Set(ctx, sharedKey(record.Player), "1", sharedTTL) // presence marker; full record stays canonical in hot+durable
	}

	if err := c.durable.Save(ctx, record); err != nil {
		c.recordFailure()
		c.enqueueBacklog(record)
		return nil // hot map already has the write; callers see success
	}
	c.recordSuccess()
	return nil
}

func (c *Coordinator) enqueueBacklog(record model.PlayerXPRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.backlog) >= c.backlogCapacity {
		c.log.Warn("persistence backlog at capacity, dropping durable retry for player", zap.Int("capacity", c.backlogCapacity))
		return
	}
	c.backlog[record.Player.ID] = record
}

func (c *Coordinator) recordFailure() {
	c.mu.Lock()
	c.failureStreak++
	wasDegraded := c.degraded
	if c.failureStreak >= c.openAfter {
		c.degraded = true
	}
	nowDegraded := c.degraded
	backlogSize := len(c.backlog)
	c.mu.Unlock()

	if nowDegraded && !wasDegraded {
		c.log.Warn("persistence coordinator entering degraded mode")
		domainevent.Publish(c.bus, domainevent.PersistenceDegraded{BacklogSize: backlogSize, Recovered: false, OccurredAt: time.Now()})
	}
}

func (c *Coordinator) recordSuccess() {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.failureStreak = 0
	c.degraded = false
	c.mu.Unlock()

	if wasDegraded {
		c.log.Info("persistence coordinator recovered")
		domainevent.Publish(c.bus, domainevent.PersistenceDegraded{Recovered: true, OccurredAt: time.Now()})
	}
}

// FlushBacklog retries every backlogged record against the durable
// store, grouped into batchSize-sized transactions when the store
// supports it; intended to be called on the configured batch window.
func (c *Coordinator) FlushBacklog(ctx context.Context) {
	c.mu.Lock()
	pending := make([]model.PlayerXPRecord, 0, len(c.backlog))
	for _, r := range c.backlog {
		pending = append(pending, r)
	}
	c.mu.Unlock()

	batcher, ok := c.durable.(batchSaver)
	if !ok {
		for _, record := range pending {
			if err := c.durable.Save(ctx, record); err != nil {
				continue
			}
			c.clearBacklogged(record)
		}
		return
	}

	for start := 0; start < len(pending); start += c.batchSize {
		end := start + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]
		if err := batcher.BatchSave(ctx, chunk); err != nil {
			continue
		}
		for _, record := range chunk {
			c.clearBacklogged(record)
		}
	}
}

func (c *Coordinator) clearBacklogged(record model.PlayerXPRecord) {
	c.mu.Lock()
	delete(c.backlog, record.Player.ID)
	c.mu.Unlock()
	c.recordSuccess()
}

func (c *Coordinator) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

func sharedKey(player model.PlayerIdentity) string {
	return "xp:" + string(player.ID[:])
}
