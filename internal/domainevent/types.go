package domainevent

import (
	"time"

	"github.com/l1jgo/hub/internal/model"
)

// XPGain is published by the XP Accumulator after a successful award.
// EventID is stable across redeliveries so the Promotion Coordinator can
// de-duplicate.
type XPGain struct {
	EventID        string
	Player         model.PlayerIdentity
	Source         string
	Amount         float64
	NewCumulative  float64
	OccurredAt     time.Time
}

// RankChanged is published by the Promotion Coordinator at most once per
// distinct (player, old, new) transition.
type RankChanged struct {
	Player     model.PlayerIdentity
	Old        model.RankCoordinate
	New        model.RankCoordinate
	OccurredAt time.Time
	Announce   bool
}

// VerificationWarning is published by the Verification State Machine's
// scheduler and consumed by the social-platform adapter.
type VerificationWarning struct {
	SessionID       string
	ExternalID      string
	MinutesRemaining float64
	ChallengeCode   string
}

// PersistenceDegraded is published when the durable-store circuit breaker
// opens, and again when it closes (Recovered=true).
type PersistenceDegraded struct {
	BacklogSize int
	Recovered   bool
	OccurredAt  time.Time
}
