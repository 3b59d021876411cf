package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/hub/internal/model"
)

// AuditRepo durably archives every routed chat message for operator
// replay (cmd/hubctl replay-audit).
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, msg model.ChatMessage) error {
	var authorID []byte
	if msg.Author != nil {
		authorID = msg.Author.ID[:]
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO channel_audit (ingress_id, ingress_at, source_platform, source_channel,
		        author_platform_id, author_player_id, raw_text, canonical_text, verdict_kind, verdict_reason)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		msg.IngressID, msg.IngressAt, msg.SourcePlatform, msg.SourceChannel,
		msg.AuthorPlatformID, authorID, msg.RawText, msg.CanonicalText, int16(msg.Verdict.Kind), msg.Verdict.Reason)
	if err != nil {
		return fmt.Errorf("insert channel audit: %w", err)
	}
	return nil
}

// ReplayWindow returns every audited message for channel between from
// and to, ordered by ingress time, for operator inspection.
func (r *AuditRepo) ReplayWindow(ctx context.Context, channel string, from, to time.Time) ([]model.ChatMessage, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT ingress_id, ingress_at, source_platform, source_channel, author_platform_id, raw_text, canonical_text
		 FROM channel_audit WHERE source_channel = $1 AND ingress_at BETWEEN $2 AND $3
		 ORDER BY ingress_at ASC`, channel, from, to)
	if err != nil {
		return nil, fmt.Errorf("replay window query: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.IngressID, &m.IngressAt, &m.SourcePlatform, &m.SourceChannel, &m.AuthorPlatformID, &m.RawText, &m.CanonicalText); err != nil {
			return nil, fmt.Errorf("replay window scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
