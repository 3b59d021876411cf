package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/l1jgo/hub/internal/model"
)

// XPRepo is the durable tier for PlayerXPRecord. The persistence
// coordinator calls Save on every save; BatchSave is used only when it
// drains its backlog of records whose durable write failed.
type XPRepo struct {
	db *DB
}

func NewXPRepo(db *DB) *XPRepo {
	return &XPRepo{db: db}
}

func (r *XPRepo) Load(ctx context.Context, player model.PlayerIdentity) (model.PlayerXPRecord, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT cumulative, per_source, daily_total, weekly_total, monthly_total,
		        daily_anchor, weekly_anchor, monthly_anchor, last_gain_at, rank_main, rank_sub
		 FROM player_xp WHERE player_id = $1`, player.ID[:])

	var perSourceRaw, lastGainRaw []byte
	var rec model.PlayerXPRecord
	rec.Player = player
	var rankMain, rankSub int16
	err := row.Scan(&rec.Cumulative, &perSourceRaw, &rec.DailyTotal, &rec.WeeklyTotal, &rec.MonthlyTotal,
		&rec.DailyAnchor, &rec.WeeklyAnchor, &rec.MonthlyAnchor, &lastGainRaw, &rankMain, &rankSub)
	if err == pgx.ErrNoRows {
		return model.PlayerXPRecord{Player: player}, nil
	}
	if err != nil {
		return model.PlayerXPRecord{}, fmt.Errorf("load xp record: %w", err)
	}

	rec.PerSource = map[string]float64{}
	_ = json.Unmarshal(perSourceRaw, &rec.PerSource)
	rawGain := map[string]time.Time{}
	_ = json.Unmarshal(lastGainRaw, &rawGain)
	rec.LastGainAt = rawGain
	rec.CurrentRank = model.RankCoordinate{MainIndex: int(rankMain), SubIndex: int(rankSub)}
	return rec, nil
}

func (r *XPRepo) Save(ctx context.Context, rec model.PlayerXPRecord) error {
	perSource, err := json.Marshal(rec.PerSource)
	if err != nil {
		return fmt.Errorf("marshal per_source: %w", err)
	}
	lastGain, err := json.Marshal(rec.LastGainAt)
	if err != nil {
		return fmt.Errorf("marshal last_gain_at: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO player_xp (player_id, cumulative, per_source, daily_total, weekly_total, monthly_total,
		        daily_anchor, weekly_anchor, monthly_anchor, last_gain_at, rank_main, rank_sub, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		 ON CONFLICT (player_id) DO UPDATE SET
		   cumulative = EXCLUDED.cumulative, per_source = EXCLUDED.per_source,
		   daily_total = EXCLUDED.daily_total, weekly_total = EXCLUDED.weekly_total,
		   monthly_total = EXCLUDED.monthly_total, daily_anchor = EXCLUDED.daily_anchor,
		   weekly_anchor = EXCLUDED.weekly_anchor, monthly_anchor = EXCLUDED.monthly_anchor,
		   last_gain_at = EXCLUDED.last_gain_at, rank_main = EXCLUDED.rank_main,
		   rank_sub = EXCLUDED.rank_sub, updated_at = now()`,
		rec.Player.ID[:], rec.Cumulative, perSource, rec.DailyTotal, rec.WeeklyTotal, rec.MonthlyTotal,
		rec.DailyAnchor, rec.WeeklyAnchor, rec.MonthlyAnchor, lastGain, int16(rec.CurrentRank.MainIndex), int16(rec.CurrentRank.SubIndex))
	if err != nil {
		return fmt.Errorf("save xp record: %w", err)
	}
	return nil
}

// AppendHistory inserts one xp_history row per gain, idempotent on
// event_id via the table's unique index; a duplicate insert is treated
// as success since the gain was already recorded.
func (r *XPRepo) AppendHistory(ctx context.Context, eventID string, player model.PlayerIdentity, source string, amount, newCumulative float64, occurredAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO xp_history (event_id, player_id, source, amount, new_cumulative, occurred_at)
		 VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (event_id) DO NOTHING`,
		eventID, player.ID[:], source, amount, newCumulative, occurredAt)
	if err != nil {
		return fmt.Errorf("append xp history: %w", err)
	}
	return nil
}

// BatchSave flushes a batch of pending records in a single transaction.
func (r *XPRepo) BatchSave(ctx context.Context, records []model.PlayerXPRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("batch save begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		perSource, _ := json.Marshal(rec.PerSource)
		lastGain, _ := json.Marshal(rec.LastGainAt)
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_xp (player_id, cumulative, per_source, daily_total, weekly_total, monthly_total,
			        daily_anchor, weekly_anchor, monthly_anchor, last_gain_at, rank_main, rank_sub, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
			 ON CONFLICT (player_id) DO UPDATE SET
			   cumulative = EXCLUDED.cumulative, per_source = EXCLUDED.per_source,
			   daily_total = EXCLUDED.daily_total, weekly_total = EXCLUDED.weekly_total,
			   monthly_total = EXCLUDED.monthly_total, daily_anchor = EXCLUDED.daily_anchor,
			   weekly_anchor = EXCLUDED.weekly_anchor, monthly_anchor = EXCLUDED.monthly_anchor,
			   last_gain_at = EXCLUDED.last_gain_at, rank_main = EXCLUDED.rank_main,
			   rank_sub = EXCLUDED.rank_sub, updated_at = now()`,
			rec.Player.ID[:], rec.Cumulative, perSource, rec.DailyTotal, rec.WeeklyTotal, rec.MonthlyTotal,
			rec.DailyAnchor, rec.WeeklyAnchor, rec.MonthlyAnchor, lastGain, int16(rec.CurrentRank.MainIndex), int16(rec.CurrentRank.SubIndex)); err != nil {
			return fmt.Errorf("batch save insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
