// Package verify implements the verification state machine: the
// challenge/response flow that advances a VerificationSession from
// Issued through to Admitted, or to one of the absorbing states.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/herr"
	"github.com/l1jgo/hub/internal/identity"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/ratelimit"
	"github.com/l1jgo/hub/internal/session"
)

// BeginResult is returned by Begin.
type BeginResult struct {
	SessionID     string
	Expiry        time.Time
	ChallengeCode string
}

// ConnectVerdict is returned by ObserveGameConnect.
type ConnectVerdict struct {
	Handle   *model.VerificationSession
	NotPending bool
	WrongEdition bool
}

const (
	verifyRateWindow = time.Hour
	verifyRateLimit  = 3
)

// Machine is the verification state machine. It owns no storage of its
// own beyond the rate limiter and scheduler — the Session Store is
// authoritative for session state.
type Machine struct {
	store      *session.Store
	resolver   *identity.Resolver
	limiter    *ratelimit.Limiter
	scheduler  *Scheduler
	bus        *domainevent.Bus
	timeout    time.Duration
	warnings   []float64 // minutes remaining, descending
	holdingPolicy   string
	holdingMinDwell time.Duration
	caser      cases.Caser
	log        *zap.Logger
	challenges ChallengeIssuer
}

// ChallengeIssuer mints the optional eight-hex challenge code.
type ChallengeIssuer interface {
	Issue(sessionSeed string) string
}

func New(store *session.Store, resolver *identity.Resolver, limiter *ratelimit.Limiter, scheduler *Scheduler, bus *domainevent.Bus, timeout time.Duration, warnings []float64, holdingPolicy string, holdingMinDwell time.Duration, challenges ChallengeIssuer, log *zap.Logger) *Machine {
	return &Machine{
		store:           store,
		resolver:        resolver,
		limiter:         limiter,
		scheduler:       scheduler,
		bus:             bus,
		timeout:         timeout,
		warnings:        warnings,
		holdingPolicy:   holdingPolicy,
		holdingMinDwell: holdingMinDwell,
		caser:           cases.Lower(language.Und),
		challenges:      challenges,
		log:             log,
	}
}

func normalize(raw string) string {
	name := raw
	if strings.HasPrefix(name, ".") {
		name = name[1:]
	}
	return strings.ToLower(name)
}

// Begin starts a verification flow for an external-identity user
// claiming a game username.
func (m *Machine) Begin(ctx context.Context, external model.ExternalIdentity, rawUsername string) (BeginResult, error) {
	verdict := m.limiter.Consume(rateKey(external), verifyRateWindow, verifyRateLimit)
	if !verdict.Allowed {
		return BeginResult{}, herr.Newf(herr.LimitExceeded, "retry after %s", verdict.RetryAfter)
	}

	res, err := m.resolver.Resolve(ctx, rawUsername)
	if err != nil {
		if errors.Is(err, identity.ErrLookupUnavailable) {
			// Rate bucket is not charged for a soft failure: undo the
			// token we just consumed so the user gets a real attempt.
			m.limiter.Uncharge(rateKey(external))
			return BeginResult{}, herr.New(herr.ServiceUnavailable, "identity lookup unavailable")
		}
		return BeginResult{}, err
	}
	if !res.Exists {
		return BeginResult{}, herr.New(herr.InvalidInput, "username does not exist")
	}

	now := time.Now()
	normalized := normalize(rawUsername)
	sess := model.VerificationSession{
		ExternalID:     external,
		RawUsername:    rawUsername,
		NormalizedName: normalized,
		Edition:        res.Edition,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.timeout),
		State:          model.StateUsernameValidated,
	}
	if m.challenges != nil {
		sess.ChallengeCode = m.challenges.Issue(fmt.Sprintf("%s:%s:%d", external, normalized, now.UnixNano()))
	}

	created, err := m.store.Create(external, normalized, sess)
	if err != nil {
		return BeginResult{}, herr.New(herr.Conflict, "session already pending")
	}

	if _, err := m.store.Advance(created.ID, model.StateAwaitingGameConnect); err != nil {
		m.log.Error("advance after create failed", zap.Error(err))
	}

	if m.scheduler != nil {
		m.scheduler.Schedule(created.ID, created.ExpiresAt, m.warnings, func(minutesRemaining float64, warningsIssued int) {
			m.store.SetWarningsIssued(created.ID, warningsIssued)
			domainevent.Publish(m.bus, domainevent.VerificationWarning{
				SessionID:        created.ID,
				ExternalID:       string(external),
				MinutesRemaining: minutesRemaining,
				ChallengeCode:    created.ChallengeCode,
			})
		})
	}

	return BeginResult{SessionID: created.ID, Expiry: created.ExpiresAt, ChallengeCode: created.ChallengeCode}, nil
}

// ObserveGameConnect is invoked when the proxy host reports a game
// connection attempt with the given username and edition, optionally
// carrying the challenge code as an alternative discriminant.
func (m *Machine) ObserveGameConnect(rawUsername string, edition model.Edition, challengeCode string) ConnectVerdict {
	normalized := normalize(rawUsername)
	sess, ok := m.store.LookupByUsername(normalized)
	if !ok || sess.State.Absorbing() {
		return ConnectVerdict{NotPending: true}
	}
	if challengeCode != "" && sess.ChallengeCode != "" && challengeCode != sess.ChallengeCode {
		// challenge code, if supplied, must match when present — but
		// absence never blocks the normalized-name path.
		return ConnectVerdict{NotPending: true}
	}
	if sess.Edition != edition {
		return ConnectVerdict{WrongEdition: true}
	}

	updated, err := m.store.Advance(sess.ID, model.StateInHoldingContext)
	if err != nil {
		return ConnectVerdict{NotPending: true}
	}

	switch m.holdingPolicy {
	case "immediate":
		admitted, err := m.AdvanceHoldingToAdmitted(updated.ID)
		if err == nil {
			updated = admitted
		}
	case "dwell":
		sessionID := updated.ID
		time.AfterFunc(m.holdingMinDwell, func() {
			if _, err := m.AdvanceHoldingToAdmitted(sessionID); err != nil {
				m.log.Debug("dwell auto-advance skipped", zap.String("session_id", sessionID), zap.Error(err))
			}
		})
	}
	// "task" leaves the session in InHoldingContext for an external
	// holding-task completion hook to advance via AdvanceHoldingToAdmitted.

	return ConnectVerdict{Handle: updated}
}

// Cancel explicitly terminates a pending session.
func (m *Machine) Cancel(external model.ExternalIdentity) error {
	if err := m.store.Cancel(external); err != nil {
		return err
	}
	if sess, ok := m.store.LookupByExternal(external); ok && m.scheduler != nil {
		m.scheduler.Cancel(sess.ID)
	}
	return nil
}

// ExpireSweep is invoked by the scheduled sweeper job.
func (m *Machine) ExpireSweep() []model.VerificationSession {
	expired := m.store.ExpireSweep(time.Now())
	if m.scheduler != nil {
		for _, sess := range expired {
			m.scheduler.Cancel(sess.ID)
		}
	}
	return expired
}

// AdvanceHoldingToAdmitted is called by the "immediate" policy right
// after the game connect, by the "dwell" timer, and by operator tooling
// or holding-task completion hooks. On admission it invalidates the
// resolver's cache entry for the bound name.
func (m *Machine) AdvanceHoldingToAdmitted(sessionID string) (*model.VerificationSession, error) {
	sess, ok := m.store.LookupByID(sessionID)
	if !ok || sess.State != model.StateInHoldingContext {
		return nil, herr.New(herr.NotPending, "session not in holding context")
	}
	admitted, err := m.store.Advance(sessionID, model.StateAdmitted)
	if err == nil && m.resolver != nil {
		m.resolver.Invalidate(sess.NormalizedName)
	}
	return admitted, err
}

func rateKey(external model.ExternalIdentity) string {
	return "verify:" + string(external)
}
