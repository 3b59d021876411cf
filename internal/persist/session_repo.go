package persist

import (
	"context"
	"fmt"

	"github.com/l1jgo/hub/internal/model"
)

// SessionRepo durably records verification sessions. The live state
// machine operates entirely on the in-memory Session Store, which
// mirrors every create and state change here and deletes the row when
// the session is evicted. Nothing in this module reads the table back,
// so a restart does not restore in-flight sessions.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Upsert(ctx context.Context, s model.VerificationSession) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO verification_sessions (id, external_id, raw_username, normalized_name, edition,
		        state, created_at, expires_at, warnings_issued, challenge_code)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, warnings_issued = EXCLUDED.warnings_issued`,
		s.ID, string(s.ExternalID), s.RawUsername, s.NormalizedName, int16(s.Edition),
		int16(s.State), s.CreatedAt, s.ExpiresAt, s.WarningsIssued, s.ChallengeCode)
	if err != nil {
		return fmt.Errorf("upsert verification session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM verification_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete verification session: %w", err)
	}
	return nil
}
