// hubctl is the operator CLI for the communication hub: force-expiring
// a stuck verification session, inspecting a player's rank/XP
// breakdown, and replaying the channel audit log for a time window.
//
// Usage:
//
//	go run ./cmd/hubctl <command> [flags]
//
// Commands: expire-session, inspect-player, replay-audit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/config"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/persist"
)

func printUsage() {
	fmt.Println("Usage: hubctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  expire-session  -username <name>        Force-expire a live verification session")
	fmt.Println("  inspect-player  -player <uuid>           Print a player's rank and XP breakdown")
	fmt.Println("  replay-audit    -channel <name> -from <rfc3339> -to <rfc3339>")
	fmt.Println("                                           Replay channel_audit for a time window")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	var err error
	switch cmd {
	case "expire-session":
		err = runExpireSession(os.Args[2:])
	case "inspect-player":
		err = runInspectPlayer(os.Args[2:])
	case "replay-audit":
		err = runReplayAudit(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runExpireSession calls the running hub's admin HTTP seam, since the
// verification session store lives only in that process's memory.
func runExpireSession(args []string) error {
	fs := flag.NewFlagSet("expire-session", flag.ExitOnError)
	username := fs.String("username", "", "username whose verification session should be force-expired")
	adminAddr := fs.String("admin-addr", "", "hub admin address, e.g. localhost:9090 (overrides config)")
	cfgPath := fs.String("config", envOr("HUB_CONFIG", "config/hub.toml"), "path to hub.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("expire-session: -username is required")
	}

	addr := *adminAddr
	if addr == "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr = cfg.Server.AdminAddr
	}

	body, err := json.Marshal(struct {
		Username string `json:"username"`
	}{Username: *username})
	if err != nil {
		return err
	}

	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	resp, err := http.Post(fmt.Sprintf("http://%s/admin/session/expire", addr), "application/json", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("call admin API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin API returned status %d", resp.StatusCode)
	}

	var out struct {
		Expired bool `json:"expired"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode admin API response: %w", err)
	}
	if !out.Expired {
		fmt.Printf("no active verification session found for %q\n", *username)
		return nil
	}
	fmt.Printf("verification session for %q force-expired\n", *username)
	return nil
}

// runInspectPlayer reads the durable XP record directly from postgres;
// unlike session state, rank and XP are written there by the
// persistence coordinator on every save and safe to read out-of-process.
func runInspectPlayer(args []string) error {
	fs := flag.NewFlagSet("inspect-player", flag.ExitOnError)
	playerFlag := fs.String("player", "", "player UUID")
	cfgPath := fs.String("config", envOr("HUB_CONFIG", "config/hub.toml"), "path to hub.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *playerFlag == "" {
		return fmt.Errorf("inspect-player: -player is required")
	}
	id, err := uuid.Parse(*playerFlag)
	if err != nil {
		return fmt.Errorf("inspect-player: invalid player UUID: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := persist.NewDB(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	repo := persist.NewXPRepo(db)
	record, err := repo.Load(ctx, model.PlayerIdentity{ID: [16]byte(id)})
	if err != nil {
		return fmt.Errorf("load xp record: %w", err)
	}

	fmt.Printf("player:        %s\n", *playerFlag)
	fmt.Printf("rank:          (%d, %d)\n", record.CurrentRank.MainIndex, record.CurrentRank.SubIndex)
	fmt.Printf("cumulative xp: %.2f\n", record.Cumulative)
	fmt.Printf("daily total:   %.2f\n", record.DailyTotal)
	fmt.Printf("weekly total:  %.2f\n", record.WeeklyTotal)
	fmt.Printf("monthly total: %.2f\n", record.MonthlyTotal)
	fmt.Println("per-source breakdown:")
	for source, amount := range record.PerSource {
		fmt.Printf("  %-20s %.2f\n", source, amount)
	}
	fmt.Println("promotion history:")
	for _, p := range record.PromotionHistory {
		fmt.Printf("  (%d,%d) -> (%d,%d) at %s\n", p.Old.MainIndex, p.Old.SubIndex, p.New.MainIndex, p.New.SubIndex, p.OccurredAt.Format(time.RFC3339))
	}
	return nil
}

// runReplayAudit reads channel_audit directly, the same table the
// audit subscriber writes to in the running hub.
func runReplayAudit(args []string) error {
	fs := flag.NewFlagSet("replay-audit", flag.ExitOnError)
	channel := fs.String("channel", "", "hub channel name")
	fromFlag := fs.String("from", "", "RFC3339 window start")
	toFlag := fs.String("to", "", "RFC3339 window end")
	cfgPath := fs.String("config", envOr("HUB_CONFIG", "config/hub.toml"), "path to hub.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *channel == "" || *fromFlag == "" || *toFlag == "" {
		return fmt.Errorf("replay-audit: -channel, -from, and -to are all required")
	}
	from, err := time.Parse(time.RFC3339, *fromFlag)
	if err != nil {
		return fmt.Errorf("replay-audit: invalid -from: %w", err)
	}
	to, err := time.Parse(time.RFC3339, *toFlag)
	if err != nil {
		return fmt.Errorf("replay-audit: invalid -to: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	repo := persist.NewAuditRepo(db)
	messages, err := repo.ReplayWindow(ctx, *channel, from, to)
	if err != nil {
		return fmt.Errorf("replay window: %w", err)
	}

	for _, m := range messages {
		fmt.Printf("[%s] %s/%s %s: %s\n", m.IngressAt.Format(time.RFC3339), m.SourcePlatform, m.SourceChannel, m.AuthorPlatformID, m.CanonicalText)
	}
	fmt.Printf("%d messages\n", len(messages))
	return nil
}
