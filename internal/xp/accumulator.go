// Package xp implements Award, the single entry point through which
// every XP source (game events, social-platform activity, moderator
// grants) credits a player, subject to per-source cooldown, per-period
// caps, and the community/weekend multiplier stack.
package xp

import (
	"time"

	"github.com/l1jgo/hub/internal/config"
	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/herr"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/ratelimit"
)

// Store is the persistence-facing boundary the accumulator reads and
// mutates through; the real implementation is the persistence
// coordinator, kept separate so this package stays free of cache and
// durable-store concerns.
type Store interface {
	Load(player model.PlayerIdentity) (model.PlayerXPRecord, error)
	Save(record model.PlayerXPRecord) error
}

type Accumulator struct {
	store    Store
	sources  map[string]config.XPSourceConfig
	capDaily float64
	capWeek  float64
	capMonth float64
	community float64
	weekend   float64
	resetLoc  *time.Location
	cooldowns *ratelimit.Limiter
	bus       *domainevent.Bus
	now       func() time.Time
}

func New(store Store, cfg config.XPConfig, bus *domainevent.Bus) *Accumulator {
	sources := make(map[string]config.XPSourceConfig, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[s.Name] = s
	}
	loc, err := time.LoadLocation(cfg.ResetAnchorTZ)
	if err != nil {
		loc = time.Local
	}
	return &Accumulator{
		store:     store,
		sources:   sources,
		capDaily:  cfg.CapDaily,
		capWeek:   cfg.CapWeekly,
		capMonth:  cfg.CapMonthly,
		community: cfg.CommunityBonus,
		weekend:   cfg.WeekendBonus,
		resetLoc:  loc,
		cooldowns: ratelimit.New(),
		bus:       bus,
		now:       time.Now,
	}
}

// Award credits player with sourceName's base XP, after cooldown and cap
// checks, applying the community and weekend bonus factors (e.g. 1.3
// and 1.5) as direct multipliers when applicable, and publishes an
// XPGain event on success.
func (a *Accumulator) Award(player model.PlayerIdentity, sourceName string, eventID string, isWeekend bool) (float64, error) {
	source, ok := a.sources[sourceName]
	if !ok {
		return 0, herr.Newf(herr.InvalidInput, "unknown xp source %q", sourceName)
	}

	cooldownKey := "xp:" + sourceName + ":" + string(player.ID[:])
	if source.Cooldown > 0 {
		v := a.cooldowns.Consume(cooldownKey, source.Cooldown, 1)
		if !v.Allowed {
			return 0, herr.Newf(herr.OnCooldown, "source %q on cooldown, retry in %s", sourceName, v.RetryAfter)
		}
	}

	record, err := a.store.Load(player)
	if err != nil {
		return 0, herr.Wrap(herr.InternalInvariant, "load xp record", err)
	}

	now := a.now()
	resetAnchorsIfElapsed(&record, now, a.resetLoc)

	amount := source.Base * source.Multiplier
	if amount <= 0 {
		amount = source.Base
	}
	if source.IsCommunity {
		amount *= a.community
	}
	if isWeekend {
		amount *= a.weekend
	}

	if a.capDaily > 0 && record.DailyTotal+amount > a.capDaily {
		amount = a.capDaily - record.DailyTotal
	}
	if a.capWeek > 0 && record.WeeklyTotal+amount > a.capWeek {
		amount = a.capWeek - record.WeeklyTotal
	}
	if a.capMonth > 0 && record.MonthlyTotal+amount > a.capMonth {
		amount = a.capMonth - record.MonthlyTotal
	}
	if amount <= 0 {
		return 0, herr.Newf(herr.Capped, "player %x has reached a cap for source %q", player.ID, sourceName)
	}

	record.Cumulative += amount
	record.DailyTotal += amount
	record.WeeklyTotal += amount
	record.MonthlyTotal += amount
	if record.PerSource == nil {
		record.PerSource = map[string]float64{}
	}
	record.PerSource[sourceName] += amount
	if record.LastGainAt == nil {
		record.LastGainAt = map[string]time.Time{}
	}
	record.LastGainAt[sourceName] = now

	if err := a.store.Save(record); err != nil {
		return 0, herr.Wrap(herr.PersistenceDegraded, "save xp record", err)
	}

	if a.bus != nil {
		domainevent.Publish(a.bus, domainevent.XPGain{
			EventID:       eventID,
			Player:        player,
			Source:        sourceName,
			Amount:        amount,
			NewCumulative: record.Cumulative,
			OccurredAt:    now,
		})
	}

	return amount, nil
}

// resetAnchorsIfElapsed zeroes the daily/weekly/monthly rolling totals
// whose calendar boundary, evaluated in loc, has been crossed since the
// anchor was last set. Called lazily on every Award so a player who was
// offline across a boundary still starts fresh on their next gain,
// without needing a standalone sweep over every stored record.
func resetAnchorsIfElapsed(record *model.PlayerXPRecord, now time.Time, loc *time.Location) {
	local := now.In(loc)
	if record.DailyAnchor.IsZero() || !sameDay(record.DailyAnchor.In(loc), local) {
		record.DailyTotal = 0
		record.DailyAnchor = now
	}
	if record.WeeklyAnchor.IsZero() || !sameWeek(record.WeeklyAnchor.In(loc), local) {
		record.WeeklyTotal = 0
		record.WeeklyAnchor = now
	}
	if record.MonthlyAnchor.IsZero() || !sameMonth(record.MonthlyAnchor.In(loc), local) {
		record.MonthlyTotal = 0
		record.MonthlyAnchor = now
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
