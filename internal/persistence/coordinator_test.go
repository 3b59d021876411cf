package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/cache"
	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/model"
)

type fakeDurable struct {
	mu      sync.Mutex
	records map[[16]byte]model.PlayerXPRecord
	failing bool
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{records: make(map[[16]byte]model.PlayerXPRecord)}
}

func (f *fakeDurable) Load(_ context.Context, player model.PlayerIdentity) (model.PlayerXPRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return model.PlayerXPRecord{}, errors.New("durable unavailable")
	}
	if r, ok := f.records[player.ID]; ok {
		return r, nil
	}
	return model.PlayerXPRecord{Player: player}, nil
}

func (f *fakeDurable) Save(_ context.Context, record model.PlayerXPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("durable unavailable")
	}
	f.records[record.Player.ID] = record
	return nil
}

type fakeBatchDurable struct {
	*fakeDurable
	batchCalls [][]model.PlayerXPRecord
}

func (f *fakeBatchDurable) BatchSave(_ context.Context, records []model.PlayerXPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, records)
	for _, r := range records {
		f.records[r.Player.ID] = r
	}
	return nil
}

func TestFlushBacklog_ChunksByBatchSize(t *testing.T) {
	durable := &fakeBatchDurable{fakeDurable: newFakeDurable()}
	durable.failing = true
	c := New(cache.NewFakeClient(), durable, domainevent.NewBus(), 16, 2, zap.NewNop())

	for i := 0; i < 5; i++ {
		player := model.PlayerIdentity{ID: [16]byte{byte(i + 10)}}
		_ = c.Save(model.PlayerXPRecord{Player: player, Cumulative: float64(i)})
	}

	durable.failing = false
	c.FlushBacklog(context.Background())

	assert.Len(t, durable.batchCalls, 3) // 2 + 2 + 1
	assert.Empty(t, c.backlog)
}

func TestSave_WritesThroughToHotMapOnDurableFailure(t *testing.T) {
	durable := newFakeDurable()
	durable.failing = true
	c := New(cache.NewFakeClient(), durable, domainevent.NewBus(), 16, 8, zap.NewNop())

	player := model.PlayerIdentity{ID: [16]byte{1}}
	record := model.PlayerXPRecord{Player: player, Cumulative: 42}

	err := c.Save(record)
	require.NoError(t, err)

	loaded, err := c.Load(player)
	require.NoError(t, err)
	assert.Equal(t, 42.0, loaded.Cumulative)
}

func TestCoordinator_DegradesAfterConsecutiveFailures(t *testing.T) {
	durable := newFakeDurable()
	durable.failing = true
	c := New(cache.NewFakeClient(), durable, domainevent.NewBus(), 16, 8, zap.NewNop())

	player := model.PlayerIdentity{ID: [16]byte{2}}
	for i := 0; i < 3; i++ {
		_ = c.Save(model.PlayerXPRecord{Player: player, Cumulative: float64(i)})
	}

	assert.True(t, c.Degraded())
}

func TestCoordinator_PublishesRecoveredAfterBacklogFlush(t *testing.T) {
	durable := newFakeDurable()
	durable.failing = true
	bus := domainevent.NewBus()
	var events []domainevent.PersistenceDegraded
	domainevent.Subscribe(bus, func(e domainevent.PersistenceDegraded) { events = append(events, e) })

	c := New(cache.NewFakeClient(), durable, bus, 16, 8, zap.NewNop())
	player := model.PlayerIdentity{ID: [16]byte{3}}
	for i := 0; i < 3; i++ {
		_ = c.Save(model.PlayerXPRecord{Player: player, Cumulative: float64(i)})
	}
	require.True(t, c.Degraded())

	durable.failing = false
	c.FlushBacklog(context.Background())

	assert.False(t, c.Degraded())
	require.Len(t, events, 2)
	assert.False(t, events[0].Recovered)
	assert.True(t, events[1].Recovered)
}
