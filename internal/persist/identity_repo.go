package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/l1jgo/hub/internal/model"
)

// IdentityRepo persists the durable PlayerIdentity <-> external-platform
// binding, the record of a verification admission decision that outlives
// the transient VerificationSession itself.
type IdentityRepo struct {
	db *DB
}

func NewIdentityRepo(db *DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

func (r *IdentityRepo) Insert(ctx context.Context, player model.PlayerIdentity) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO player_identities (id, display_name, edition) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		player.ID[:], player.DisplayName, int16(player.Edition))
	if err != nil {
		return fmt.Errorf("insert player identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) Bind(ctx context.Context, externalID string, player model.PlayerIdentity) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO external_bindings (external_id, player_id) VALUES ($1, $2)
		 ON CONFLICT (external_id) DO UPDATE SET player_id = EXCLUDED.player_id`,
		externalID, player.ID[:])
	if err != nil {
		return fmt.Errorf("bind external identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) LookupByExternal(ctx context.Context, externalID string) (model.PlayerIdentity, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT p.id, p.display_name, p.edition
		 FROM external_bindings b JOIN player_identities p ON p.id = b.player_id
		 WHERE b.external_id = $1`, externalID)

	var id []byte
	var name string
	var edition int16
	if err := row.Scan(&id, &name, &edition); err != nil {
		if err == pgx.ErrNoRows {
			return model.PlayerIdentity{}, ErrNotFound
		}
		return model.PlayerIdentity{}, fmt.Errorf("lookup external identity: %w", err)
	}

	var out model.PlayerIdentity
	copy(out.ID[:], id)
	out.DisplayName = name
	out.Edition = model.Edition(edition)
	return out, nil
}
