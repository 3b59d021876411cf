package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/adapter"
	"github.com/l1jgo/hub/internal/filter"
	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/persist"
	"github.com/l1jgo/hub/internal/persistence"
	"github.com/l1jgo/hub/internal/router"
	"github.com/l1jgo/hub/internal/translate"
	"github.com/l1jgo/hub/internal/xp"
)

// isNilAdapter reports whether an adapter.Adapter value holds a typed
// nil pointer, which a plain `== nil` comparison misses once the
// concrete type is boxed in the interface.
func isNilAdapter(a adapter.Adapter) bool {
	v := reflect.ValueOf(a)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// channelMapFromList builds a personality's hub-channel -> platform
// channel id map. Configuration only names the hub channels a
// personality serves; the platform channel id is assumed equal to the
// hub channel name absent a separate per-platform mapping table.
func channelMapFromList(channels []string) map[string]string {
	m := make(map[string]string, len(channels))
	for _, c := range channels {
		m[c] = c
	}
	return m
}

// buildTranslationProviders constructs one HTTPProvider per configured
// name, reading its endpoint and API key from environment variables
// named after the provider (e.g. HUB_TRANSLATE_DEEPL_ENDPOINT).
func buildTranslationProviders(names []string) []translate.Provider {
	providers := make([]translate.Provider, 0, len(names))
	for _, name := range names {
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		endpoint := os.Getenv(fmt.Sprintf("HUB_TRANSLATE_%s_ENDPOINT", key))
		apiKey := os.Getenv(fmt.Sprintf("HUB_TRANSLATE_%s_KEY", key))
		providers = append(providers, translate.NewHTTPProvider(name, endpoint, apiKey, nil))
	}
	return providers
}

// embeddedHost is the minimal in-process stand-in for the proxy host's
// packet plumbing, which is out of scope for this module: a real
// deployment embeds the game adapter inside the host process and
// supplies a HostConn backed by actual player sessions. This
// implementation logs delivery instead, keeping the adapter exercised
// in a standalone boot.
type embeddedHost struct {
	log     *zap.Logger
	records *rankRecordStore
}

func newEmbeddedHost(log *zap.Logger, records *rankRecordStore) *embeddedHost {
	return &embeddedHost{log: log, records: records}
}

func (h *embeddedHost) DeliverToPlayer(playerID [16]byte, rendered string) error {
	h.log.Debug("deliver to player", zap.String("player", fmt.Sprintf("%x", playerID)), zap.String("text", rendered))
	return nil
}

func (h *embeddedHost) DeliverToChannel(channel string, rendered string) error {
	h.log.Debug("deliver to channel", zap.String("channel", channel), zap.String("text", rendered))
	return nil
}

func (h *embeddedHost) RankOf(playerID [16]byte) model.RankCoordinate {
	coord, _ := h.records.CurrentRank(model.PlayerIdentity{ID: playerID})
	return coord
}

// rankRecordStore adapts the persistence coordinator's PlayerXPRecord
// storage to promotion.RecordStore, the narrow rank-tracking surface
// the promotion coordinator needs.
type rankRecordStore struct {
	coord *persistence.Coordinator
}

func newRankRecordStore(coord *persistence.Coordinator) *rankRecordStore {
	return &rankRecordStore{coord: coord}
}

func (s *rankRecordStore) CurrentRank(player model.PlayerIdentity) (model.RankCoordinate, bool) {
	record, err := s.coord.Load(player)
	if err != nil {
		return model.RankCoordinate{}, false
	}
	zero := model.RankCoordinate{}
	return record.CurrentRank, record.CurrentRank != zero
}

func (s *rankRecordStore) SetRank(player model.PlayerIdentity, coord model.RankCoordinate, promo model.PromotionRecord) {
	record, err := s.coord.Load(player)
	if err != nil {
		record = model.PlayerXPRecord{Player: player}
	}
	record.CurrentRank = coord
	record.PromotionHistory = append(record.PromotionHistory, promo)
	_ = s.coord.Save(record)
}

// multiRoleSyncer fans SyncRole out to every configured adapter that
// implements it meaningfully (the game adapter's is a no-op).
type multiRoleSyncer struct {
	adapters []adapter.Adapter
}

func newMultiRoleSyncer(adapters ...adapter.Adapter) *multiRoleSyncer {
	live := make([]adapter.Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a != nil && !isNilAdapter(a) {
			live = append(live, a)
		}
	}
	return &multiRoleSyncer{adapters: live}
}

func (s *multiRoleSyncer) SyncRole(player model.PlayerIdentity, newRole string) error {
	var firstErr error
	for _, a := range s.adapters {
		if err := a.SyncRole(player, newRole); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// routerAnnouncer publishes a promotion line into the configured
// channel so every subscribed platform adapter renders and relays it
// through its own formatter.
type routerAnnouncer struct {
	rt      *router.Router
	channel string
}

func newRouterAnnouncer(rt *router.Router, channel string) *routerAnnouncer {
	return &routerAnnouncer{rt: rt, channel: channel}
}

func (a *routerAnnouncer) AnnouncePromotion(player model.PlayerIdentity, old, updated model.RankCoordinate) {
	text := fmt.Sprintf("%s advanced from rank (%d,%d) to (%d,%d)!", player.DisplayName, old.MainIndex, old.SubIndex, updated.MainIndex, updated.SubIndex)
	a.rt.Publish(model.ChatMessage{
		IngressAt:      time.Now(),
		SourcePlatform: "promotion",
		SourceChannel:  a.channel,
		Author:         &player,
		CanonicalText:  text,
		RawText:        text,
		Priority:       true,
	})
}

// auditSubscriber mirrors every routed message into the durable audit
// log. It subscribes to the same channels as the platform adapters so
// it observes exactly what was relayed, not the pre-filter raw input.
type auditSubscriber struct {
	repo *persist.AuditRepo
	log  *zap.Logger
}

func newAuditSubscriber(repo *persist.AuditRepo, log *zap.Logger) *auditSubscriber {
	return &auditSubscriber{repo: repo, log: log}
}

func (a *auditSubscriber) Identity() string { return "audit" }

func (a *auditSubscriber) Deliver(msg model.ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.repo.Insert(ctx, msg); err != nil {
		a.log.Warn("audit insert failed", zap.Error(err))
	}
	return nil
}

// ingressPipeline is what every adapter's inbound callback is wired to
// instead of the router directly: filter, translate, award XP, then
// publish. Per-sender filter state is kept keyed by platform author id.
type ingressPipeline struct {
	chain        *filter.Chain
	rt           *router.Router
	accumulator  *xp.Accumulator
	translator   *translate.Service
	xpSourceByPlatform map[string]string
	log          *zap.Logger

	mu     sync.Mutex
	states map[string]*filter.SenderState
}

func newIngressPipeline(chain *filter.Chain, rt *router.Router, accumulator *xp.Accumulator, translator *translate.Service, xpSources map[string]string, log *zap.Logger) *ingressPipeline {
	return &ingressPipeline{
		chain:              chain,
		rt:                 rt,
		accumulator:        accumulator,
		translator:         translator,
		xpSourceByPlatform: xpSources,
		log:                log,
		states:             make(map[string]*filter.SenderState),
	}
}

func (p *ingressPipeline) stateFor(senderID string) *filter.SenderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[senderID]
	if !ok {
		s = filter.NewSenderState(50)
		p.states[senderID] = s
	}
	return s
}

func (p *ingressPipeline) Handle(msg model.ChatMessage) {
	state := p.stateFor(msg.AuthorPlatformID)
	verdict := p.chain.Evaluate(&msg, state, time.Now())
	msg.Verdict = verdict
	switch verdict.Kind {
	case model.VerdictCancel:
		return
	case model.VerdictModify:
		msg.CanonicalText = verdict.NewText
	}

	if p.translator != nil && msg.DetectedLang != "" && msg.DetectedLang != "en" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		result, err := p.translator.Translate(ctx, msg.CanonicalText, msg.DetectedLang, "en")
		cancel()
		if err == nil {
			msg.CanonicalText = result.Text
		} else {
			p.log.Debug("translation skipped", zap.Error(err))
		}
	}

	if p.accumulator != nil && msg.Author != nil {
		if sourceName, ok := p.xpSourceByPlatform[msg.SourcePlatform]; ok {
			if _, err := p.accumulator.Award(*msg.Author, sourceName, msg.IngressID, isWeekend(msg.IngressAt)); err != nil {
				p.log.Debug("xp award skipped", zap.Error(err))
			}
		}
	}

	p.rt.Publish(msg)
}

// buildStyleTable derives display prefixes from the configured role map
// so the formatter shows the same rank name that was synced to the
// social platform's roles.
func buildStyleTable(roleMap map[[2]int]string) format.Table {
	table := make(format.Table, len(roleMap))
	for coord, role := range roleMap {
		table[coord] = format.RankStyle{Prefix: role}
	}
	return table
}

func isWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}
