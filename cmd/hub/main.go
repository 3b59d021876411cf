package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/hub/internal/adapter"
	"github.com/l1jgo/hub/internal/adapter/bridge"
	"github.com/l1jgo/hub/internal/adapter/game"
	"github.com/l1jgo/hub/internal/adapter/social"
	"github.com/l1jgo/hub/internal/admission"
	"github.com/l1jgo/hub/internal/cache"
	"github.com/l1jgo/hub/internal/config"
	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/filter"
	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/identity"
	"github.com/l1jgo/hub/internal/metrics"
	"github.com/l1jgo/hub/internal/persist"
	"github.com/l1jgo/hub/internal/persistence"
	"github.com/l1jgo/hub/internal/promotion"
	"github.com/l1jgo/hub/internal/rank"
	"github.com/l1jgo/hub/internal/ratelimit"
	"github.com/l1jgo/hub/internal/router"
	"github.com/l1jgo/hub/internal/session"
	"github.com/l1jgo/hub/internal/translate"
	"github.com/l1jgo/hub/internal/verify"
	"github.com/l1jgo/hub/internal/xp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          L1JGO Communication Hub           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     cross-platform chat & identity         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1minstance:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ── Main hub logic ─────────────────────────────────────────────────

func run() error {
	cfgPath := "config/hub.toml"
	if p := os.Getenv("HUB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	printSection("storage")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	printOK("postgres pool connected")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	printOK("migrations up to date")

	sharedCache := cache.New(cfg.Cache.Addr)
	printOK(fmt.Sprintf("redis tier at %s", cfg.Cache.Addr))

	xpRepo := persist.NewXPRepo(db)
	sessionRepo := persist.NewSessionRepo(db)
	auditRepo := persist.NewAuditRepo(db)

	printSection("metrics")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	metricsServer := &http.Server{Addr: cfg.Server.AdminAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	printOK(fmt.Sprintf("metrics listening on %s", cfg.Server.AdminAddr))

	bus := domainevent.NewBus()

	printSection("identity & verification")
	lookupClient := identity.NewHTTPLookupClient(cfg.Identity.LookupBaseURL, http.DefaultClient)
	resolver, err := identity.New(lookupClient, cfg.Identity.CacheSize, cfg.Identity.PositiveTTL, cfg.Identity.NegativeTTL, cfg.Identity.LookupTimeout, log.With(zap.String("component", "identity")), m)
	if err != nil {
		return fmt.Errorf("build identity resolver: %w", err)
	}

	sessionLog := log.With(zap.String("component", "session"))
	sessionRecorder := persist.NewSessionRecorder(sessionRepo, sessionLog)
	sessionStore := session.New(cfg.Verification.EvictionGrace, sessionLog, sessionRecorder)

	limiter := ratelimit.New()
	scheduler := verify.NewScheduler()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate challenge secret: %w", err)
	}
	challenges := verify.NewHexChallengeIssuer(secret)

	machine := verify.New(sessionStore, resolver, limiter, scheduler, bus, cfg.Verification.Timeout, cfg.Verification.Warnings, cfg.Verification.HoldingPolicy, cfg.Verification.HoldingMinDwell, challenges, log.With(zap.String("component", "verify")))
	gate := admission.New(sessionStore, cfg.Verification.HoldingTarget, cfg.Verification.GateDeadline)
	newHostAPI(gate, machine, sessionStore).routes(metricsMux)
	printOK("verification state machine armed, host API routed")

	printSection("chat pipeline")
	chain, err := filter.BuildChain(cfg.Chat)
	if err != nil {
		return fmt.Errorf("build filter chain: %w", err)
	}
	rt := router.New(cfg.Chat.QueueDepth, time.Duration(cfg.Chat.PriorityBlockMS)*time.Millisecond, cfg.Chat.DedupWindow, log.With(zap.String("component", "router")))
	rt.SetDropHook(m.IncRouterDrop)
	printOK("router and filter chain online")

	printSection("translation")
	providers := buildTranslationProviders(cfg.Translation.Providers)
	translator, err := translate.New(providers, cfg.Translation.MinConfidence, cfg.Translation.ProviderTimeout, cfg.Translation.LRUSize, sharedCache, cfg.Translation.CacheTTL, log.With(zap.String("component", "translate")))
	if err != nil {
		return fmt.Errorf("build translation service: %w", err)
	}
	printOK(fmt.Sprintf("%d translation providers configured", len(providers)))

	printSection("progression")
	persistCoord := persistence.New(sharedCache, xpRepo, bus, cfg.Persistence.BacklogMax, cfg.Persistence.BatchSize, log.With(zap.String("component", "persistence")))
	accumulator := xp.New(persistCoord, cfg.XP, bus)
	records := newRankRecordStore(persistCoord)

	lattice, err := rank.NewLattice(cfg.Rank.MainBaseXP, cfg.Rank.SubMultipliers)
	if err != nil {
		return fmt.Errorf("build rank lattice: %w", err)
	}
	roleMap, err := rank.LoadRoleMap(cfg.Rank.RoleMapPath)
	if err != nil {
		return fmt.Errorf("load role map: %w", err)
	}
	printOK("rank lattice and role map loaded")

	printSection("platform adapters")
	styleTable := buildStyleTable(roleMap)
	gameFormatter := format.New(styleTable, &format.GameRenderer{})
	socialFormatter := format.New(styleTable, &format.EmbedRenderer{})
	bridgeFormatter := format.New(styleTable, &format.PlainRenderer{ChannelTag: "bridge"})
	gameHost := newEmbeddedHost(log.With(zap.String("component", "adapter.game.host")), records)
	gameAdapter := game.New(gameHost, gameFormatter, log.With(zap.String("component", "adapter.game")))

	var socialAdapter *social.Adapter
	if len(cfg.Social.Bots) > 0 {
		bots := make([]social.BotConfig, 0, len(cfg.Social.Bots))
		for _, b := range cfg.Social.Bots {
			bots = append(bots, social.BotConfig{
				Name:       b.Name,
				Credential: b.Credential,
				Priority:   b.Priority,
				ChannelMap: channelMapFromList(b.Channels),
			})
		}
		socialAdapter, err = social.New(bots, social.NewSession, socialFormatter, records, cfg.Social.RequestsPerSecond, cfg.Social.SegmentCeiling, log.With(zap.String("component", "adapter.social")))
		if err != nil {
			return fmt.Errorf("build social adapter: %w", err)
		}
		printOK(fmt.Sprintf("%d social personalities online", len(bots)))
	}

	var bridgeAdapter *bridge.Adapter
	if cfg.Bridge.URL != "" {
		bridgeAdapter = bridge.New(
			cfg.Bridge.URL, bridgeFormatter,
			time.Duration(cfg.Bridge.ReconnectBaseMS)*time.Millisecond,
			time.Duration(cfg.Bridge.ReconnectCapMS)*time.Millisecond,
			cfg.Bridge.DialTimeout,
			log.With(zap.String("component", "adapter.bridge")),
		)
		printOK(fmt.Sprintf("bridge connecting to %s", cfg.Bridge.URL))
	}

	xpSourceByPlatform := make(map[string]string, len(cfg.XP.Sources))
	for _, s := range cfg.XP.Sources {
		xpSourceByPlatform[s.Name] = s.Name
	}
	ingress := newIngressPipeline(chain, rt, accumulator, translator, xpSourceByPlatform, log.With(zap.String("component", "ingress")))

	for _, a := range []adapter.Adapter{gameAdapter, socialAdapter, bridgeAdapter} {
		if a == nil || isNilAdapter(a) {
			continue
		}
		rt.Subscribe("global", a)
		a.SubscribeInbound(ingress.Handle)
	}
	rt.Subscribe("global", newAuditSubscriber(auditRepo, log.With(zap.String("component", "audit"))))

	printSection("promotion")
	roleSyncer := newMultiRoleSyncer(gameAdapter, socialAdapter, bridgeAdapter)
	announcer := newRouterAnnouncer(rt, cfg.Rank.PromotionChannel)
	promoCoord, err := promotion.New(lattice, roleMap, roleSyncer, announcer, records, bus, cfg.Rank.AnnounceDemotions, log.With(zap.String("component", "promotion")))
	if err != nil {
		return fmt.Errorf("build promotion coordinator: %w", err)
	}
	_ = promoCoord
	printOK("promotion coordinator subscribed to XP gains")

	if socialAdapter != nil {
		domainevent.Subscribe(bus, func(ev domainevent.VerificationWarning) {
			text := fmt.Sprintf("Verification expires in %.0f minutes. Challenge code: %s", ev.MinutesRemaining, ev.ChallengeCode)
			if err := socialAdapter.SendDirect(ev.ExternalID, text); err != nil {
				log.Warn("failed to deliver verification warning", zap.Error(err))
			}
		})
	}

	printSection("scheduled jobs")
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Verification.SweepInterval), func() {
		expired := machine.ExpireSweep()
		if len(expired) > 0 {
			log.Info("verification sweep expired sessions", zap.Int("count", len(expired)))
		}
	}); err != nil {
		return fmt.Errorf("schedule verification sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Persistence.BatchWindow), func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		persistCoord.FlushBacklog(flushCtx)
		flushCancel()
		m.SetPersistenceBacklog(0)
	}); err != nil {
		return fmt.Errorf("schedule persistence flush: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Audit.Retention), func() {
		log.Debug("audit retention window elapsed", zap.Duration("retention", cfg.Audit.Retention))
	}); err != nil {
		return fmt.Errorf("schedule audit retention log: %w", err)
	}
	c.Start()
	defer c.Stop()
	printOK("sweep, backlog flush, and audit jobs scheduled")

	printSection("ready")
	printReady(fmt.Sprintf("metrics and health on %s", cfg.Server.AdminAddr))
	printReady("awaiting platform traffic")
	fmt.Println()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdownCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	persistCoord.FlushBacklog(drainCtx)
	drainCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", zap.Error(err))
	}
	if bridgeAdapter != nil {
		bridgeAdapter.Close()
	}
	log.Info("hub stopped")
	return nil
}
