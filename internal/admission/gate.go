// Package admission implements the Admission Gate: the synchronous
// connect-time check the proxy host consults before letting a player
// through.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/session"
)

// VerdictKind is the outcome reported to the host.
type VerdictKind int

const (
	AllowConnect VerdictKind = iota
	AllowConnectToHoldingOnly
	Reject
)

type Verdict struct {
	Kind          VerdictKind
	HoldingTarget string
	Reason        string
}

// Gate is consulted synchronously at player preconnect. It never mutates
// session state except the holding->admitted transition, which is gated
// by policy and performed by the verification machine, not here.
type Gate struct {
	store         *session.Store
	holdingTarget string
	deadline      time.Duration
}

func New(store *session.Store, holdingTarget string, deadline time.Duration) *Gate {
	return &Gate{store: store, holdingTarget: holdingTarget, deadline: deadline}
}

// Check consults the session store by normalized username. The work is
// joined on a bounded future with a hard deadline: exceeding it returns
// Reject(timeout) rather than stalling the host.
func (g *Gate) Check(ctx context.Context, rawUsername string, edition model.Edition) Verdict {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	result := make(chan Verdict, 1)
	go func() {
		result <- g.lookup(normalize(rawUsername), edition)
	}()

	select {
	case v := <-result:
		return v
	case <-ctx.Done():
		return Verdict{Kind: Reject, Reason: "timeout"}
	}
}

func (g *Gate) lookup(normalizedName string, edition model.Edition) Verdict {
	sess, ok := g.store.LookupByUsername(normalizedName)
	if !ok {
		return Verdict{Kind: Reject, Reason: "not verified"}
	}
	if sess.Edition != edition {
		return Verdict{Kind: Reject, Reason: "edition mismatch"}
	}
	switch sess.State {
	case model.StateAdmitted:
		return Verdict{Kind: AllowConnect}
	case model.StateInHoldingContext:
		return Verdict{Kind: AllowConnectToHoldingOnly, HoldingTarget: g.holdingTarget}
	default:
		return Verdict{Kind: Reject, Reason: fmt.Sprintf("not admitted (%s)", sess.State)}
	}
}

func normalize(raw string) string {
	if len(raw) > 0 && raw[0] == '.' {
		raw = raw[1:]
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
