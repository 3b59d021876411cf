package promotion

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/rank"
)

type fakeSyncer struct {
	mu    sync.Mutex
	roles map[[16]byte]string
}

func newFakeSyncer() *fakeSyncer { return &fakeSyncer{roles: make(map[[16]byte]string)} }
func (f *fakeSyncer) SyncRole(player model.PlayerIdentity, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[player.ID] = role
	return nil
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	count int
}

func (f *fakeAnnouncer) AnnouncePromotion(model.PlayerIdentity, model.RankCoordinate, model.RankCoordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}
func (f *fakeAnnouncer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeRecords struct {
	mu    sync.Mutex
	ranks map[[16]byte]model.RankCoordinate
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{ranks: make(map[[16]byte]model.RankCoordinate)}
}
func (f *fakeRecords) CurrentRank(player model.PlayerIdentity) (model.RankCoordinate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ranks[player.ID]
	return r, ok
}
func (f *fakeRecords) SetRank(player model.PlayerIdentity, coord model.RankCoordinate, _ model.PromotionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranks[player.ID] = coord
}

func testLattice(t *testing.T) *rank.Lattice {
	t.Helper()
	base := make([]float64, rank.MainRanks)
	for i := range base {
		base[i] = float64((i + 1) * 1000)
	}
	mult := []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6}
	l, err := rank.NewLattice(base, mult)
	require.NoError(t, err)
	return l
}

func TestHandleXPGain_PromotesAndSyncsRole(t *testing.T) {
	l := testLattice(t)
	bus := domainevent.NewBus()
	syncer := newFakeSyncer()
	announcer := &fakeAnnouncer{}
	records := newFakeRecords()
	roleMap := map[[2]int]string{{0, 0}: "Recruit"}

	_, err := New(l, roleMap, syncer, announcer, records, bus, false, zap.NewNop())
	require.NoError(t, err)

	player := model.PlayerIdentity{ID: [16]byte{9}}
	domainevent.Publish(bus, domainevent.XPGain{EventID: "e1", Player: player, NewCumulative: 500, OccurredAt: time.Now()})

	rankNow, ok := records.CurrentRank(player)
	require.True(t, ok)
	assert.Equal(t, 0, rankNow.MainIndex)
	assert.Equal(t, "Recruit", syncer.roles[player.ID])
	assert.Equal(t, 1, announcer.calls())
}

func TestHandleXPGain_DuplicateEventIDIsIgnored(t *testing.T) {
	l := testLattice(t)
	bus := domainevent.NewBus()
	announcer := &fakeAnnouncer{}
	records := newFakeRecords()

	_, err := New(l, nil, newFakeSyncer(), announcer, records, bus, false, zap.NewNop())
	require.NoError(t, err)

	player := model.PlayerIdentity{ID: [16]byte{10}}
	evt := domainevent.XPGain{EventID: "dup", Player: player, NewCumulative: 5000, OccurredAt: time.Now()}
	domainevent.Publish(bus, evt)
	domainevent.Publish(bus, evt)

	assert.Equal(t, 1, announcer.calls())
}

func TestHandleXPGain_SameRankDoesNotAnnounce(t *testing.T) {
	l := testLattice(t)
	bus := domainevent.NewBus()
	announcer := &fakeAnnouncer{}
	records := newFakeRecords()

	_, err := New(l, nil, newFakeSyncer(), announcer, records, bus, false, zap.NewNop())
	require.NoError(t, err)

	player := model.PlayerIdentity{ID: [16]byte{11}}
	domainevent.Publish(bus, domainevent.XPGain{EventID: "e1", Player: player, NewCumulative: 500, OccurredAt: time.Now()})
	domainevent.Publish(bus, domainevent.XPGain{EventID: "e2", Player: player, NewCumulative: 550, OccurredAt: time.Now()})

	assert.Equal(t, 1, announcer.calls())
}

func TestHandleXPGain_DemotionOnlyAnnouncedWhenConfigured(t *testing.T) {
	l := testLattice(t)
	bus := domainevent.NewBus()
	announcer := &fakeAnnouncer{}
	records := newFakeRecords()

	_, err := New(l, nil, newFakeSyncer(), announcer, records, bus, false, zap.NewNop())
	require.NoError(t, err)

	player := model.PlayerIdentity{ID: [16]byte{12}}
	domainevent.Publish(bus, domainevent.XPGain{EventID: "e1", Player: player, NewCumulative: 5000, OccurredAt: time.Now()})
	domainevent.Publish(bus, domainevent.XPGain{EventID: "e2", Player: player, NewCumulative: 0, OccurredAt: time.Now()})

	assert.Equal(t, 1, announcer.calls())
}
