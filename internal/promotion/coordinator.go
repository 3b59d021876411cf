// Package promotion consumes XPGain events, re-derives the player's
// rank against the lattice, and on a change triggers role sync and a
// router announcement. Idempotent per event id so a redelivered XPGain
// never double-promotes.
package promotion

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/rank"
)

// RoleSyncer pushes a role assignment to the platforms that need it
// (currently the social adapter's guild role grant).
type RoleSyncer interface {
	SyncRole(player model.PlayerIdentity, newRole string) error
}

// Announcer publishes a promotion message to the configured channel.
type Announcer interface {
	AnnouncePromotion(player model.PlayerIdentity, old, updated model.RankCoordinate)
}

// RecordStore tracks each player's current rank so Coordinator can
// detect a change without re-deriving from a full XP history.
type RecordStore interface {
	CurrentRank(player model.PlayerIdentity) (model.RankCoordinate, bool)
	SetRank(player model.PlayerIdentity, coord model.RankCoordinate, promo model.PromotionRecord)
}

type Coordinator struct {
	lattice          *rank.Lattice
	roleMap          map[[2]int]string
	syncer           RoleSyncer
	announcer        Announcer
	records          RecordStore
	bus              *domainevent.Bus
	announceDemotion bool
	seen             *lru.Cache[string, struct{}]
	log              *zap.Logger
}

func New(lattice *rank.Lattice, roleMap map[[2]int]string, syncer RoleSyncer, announcer Announcer, records RecordStore, bus *domainevent.Bus, announceDemotions bool, log *zap.Logger) (*Coordinator, error) {
	seen, err := lru.New[string, struct{}](4096)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		lattice:          lattice,
		roleMap:          roleMap,
		syncer:           syncer,
		announcer:        announcer,
		records:          records,
		bus:              bus,
		announceDemotion: announceDemotions,
		seen:             seen,
		log:              log,
	}
	domainevent.Subscribe(bus, c.handleXPGain)
	return c, nil
}

func (c *Coordinator) handleXPGain(event domainevent.XPGain) {
	if _, dup := c.seen.Get(event.EventID); dup {
		return
	}
	c.seen.Add(event.EventID, struct{}{})

	newRank := c.lattice.Derive(event.NewCumulative)
	oldRank, known := c.records.CurrentRank(event.Player)
	if known && oldRank == newRank {
		return
	}

	isPromotion := !known || oldRank.Less(newRank)
	c.records.SetRank(event.Player, newRank, model.PromotionRecord{Old: oldRank, New: newRank, OccurredAt: event.OccurredAt})

	if role, ok := c.roleMap[[2]int{newRank.MainIndex, newRank.SubIndex}]; ok {
		if err := c.syncer.SyncRole(event.Player, role); err != nil {
			c.log.Warn("role sync failed", zap.Error(err), zap.String("role", role))
		}
	}

	announce := isPromotion || c.announceDemotion
	if announce {
		c.announcer.AnnouncePromotion(event.Player, oldRank, newRank)
	}

	domainevent.Publish(c.bus, domainevent.RankChanged{
		Player:     event.Player,
		Old:        oldRank,
		New:        newRank,
		OccurredAt: event.OccurredAt,
		Announce:   announce,
	})
}
