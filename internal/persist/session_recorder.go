package persist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/model"
)

// SessionRecorder adapts SessionRepo to the session package's Recorder
// interface: the in-memory store's mutation path is synchronous and
// cannot block on a database round trip, so durable mirroring happens
// on a short-lived background context and failures are logged, not
// propagated.
type SessionRecorder struct {
	repo *SessionRepo
	log  *zap.Logger
}

func NewSessionRecorder(repo *SessionRepo, log *zap.Logger) *SessionRecorder {
	return &SessionRecorder{repo: repo, log: log}
}

func (r *SessionRecorder) Upsert(s model.VerificationSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.repo.Upsert(ctx, s); err != nil {
		r.log.Warn("session durable mirror failed", zap.Error(err), zap.String("session_id", s.ID))
	}
}

func (r *SessionRecorder) Delete(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.repo.Delete(ctx, id); err != nil {
		r.log.Warn("session durable delete failed", zap.Error(err), zap.String("session_id", id))
	}
}
