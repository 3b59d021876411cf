// Package session holds pending verification sessions keyed by external
// identity and by normalized game username, and enforces expiry via a
// periodic sweep.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/herr"
	"github.com/l1jgo/hub/internal/model"
)

// Recorder persists session state for crash recovery. It is optional —
// a nil Recorder means the store is memory-only.
type Recorder interface {
	Upsert(s model.VerificationSession)
	Delete(id string)
}

// Store is the authoritative in-memory table of VerificationSessions.
// The State Machine is the only component permitted to mutate through
// it; all other components read snapshots.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*model.VerificationSession
	byExternal map[model.ExternalIdentity]string
	byUsername map[string]string

	gracePeriod time.Duration
	log         *zap.Logger
	recorder    Recorder
}

func New(gracePeriod time.Duration, log *zap.Logger, recorder Recorder) *Store {
	return &Store{
		byID:        make(map[string]*model.VerificationSession),
		byExternal:  make(map[model.ExternalIdentity]string),
		byUsername:  make(map[string]string),
		gracePeriod: gracePeriod,
		log:         log,
		recorder:    recorder,
	}
}

// Create inserts a new session, failing with a Conflict error if either
// index already has an entry for this external identity or username.
func (s *Store) Create(external model.ExternalIdentity, normalizedName string, sess model.VerificationSession) (*model.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byExternal[external]; ok {
		return nil, herr.New(herr.Conflict, "duplicate external identity")
	}
	if _, ok := s.byUsername[normalizedName]; ok {
		return nil, herr.New(herr.Conflict, "duplicate username")
	}

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	stored := sess
	s.byID[stored.ID] = &stored
	s.byExternal[external] = stored.ID
	s.byUsername[normalizedName] = stored.ID

	if s.recorder != nil {
		s.recorder.Upsert(stored)
	}
	return &stored, nil
}

func (s *Store) LookupByExternal(external model.ExternalIdentity) (*model.VerificationSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[external]
	if !ok {
		return nil, false
	}
	sess := *s.byID[id]
	return &sess, true
}

func (s *Store) LookupByUsername(normalizedName string) (*model.VerificationSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[normalizedName]
	if !ok {
		return nil, false
	}
	sess := *s.byID[id]
	return &sess, true
}

func (s *Store) LookupByID(id string) (*model.VerificationSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Advance moves a session to a new state in place. Transitions are not
// validated here — the state machine owns the DAG; the store only
// persists the result atomically with respect to other store operations.
func (s *Store) Advance(id string, newState model.SessionState) (*model.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, herr.New(herr.InternalInvariant, "advance: unknown session id")
	}
	sess.State = newState
	cp := *sess
	if s.recorder != nil {
		s.recorder.Upsert(cp)
	}
	return &cp, nil
}

// SetWarningsIssued updates the monotonic warning counter.
func (s *Store) SetWarningsIssued(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		sess.WarningsIssued = n
	}
}

// Cancel transitions a session to Cancelled and releases its index
// entries after the grace period used for final-notification delivery.
func (s *Store) Cancel(external model.ExternalIdentity) error {
	s.mu.Lock()
	id, ok := s.byExternal[external]
	if !ok {
		s.mu.Unlock()
		return herr.New(herr.InvalidInput, "no pending session for external identity")
	}
	sess := s.byID[id]
	sess.State = model.StateCancelled
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Upsert(*sess)
	}
	s.scheduleEviction(id)
	return nil
}

// ExpireSweep scans for sessions whose absolute expiry has passed,
// transitions them to Expired, and schedules index release after a grace
// period long enough for a final warning to be delivered. It is
// idempotent and safe to run concurrently with itself (guarded by the
// store's own lock) or to be interrupted between sessions.
func (s *Store) ExpireSweep(now time.Time) []model.VerificationSession {
	s.mu.Lock()
	var expired []model.VerificationSession
	for id, sess := range s.byID {
		if sess.State.Absorbing() {
			continue
		}
		if now.After(sess.ExpiresAt) {
			sess.State = model.StateExpired
			expired = append(expired, *sess)
			_ = id
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		if s.recorder != nil {
			s.recorder.Upsert(sess)
		}
		s.scheduleEviction(sess.ID)
	}
	return expired
}

// scheduleEviction releases the index entries for id after the grace
// period. Runs on its own timer goroutine rather than blocking the
// caller.
func (s *Store) scheduleEviction(id string) {
	time.AfterFunc(s.gracePeriod, func() {
		s.evict(id)
	})
}

func (s *Store) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byExternal, sess.ExternalID)
	delete(s.byUsername, sess.NormalizedName)
	if s.recorder != nil {
		s.recorder.Delete(id)
	}
}

// SnapshotAll returns a copy of every session currently tracked, for
// diagnostics and recovery-table reconciliation.
func (s *Store) SnapshotAll() []model.VerificationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.VerificationSession, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, *sess)
	}
	return out
}
