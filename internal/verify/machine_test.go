package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/domainevent"
	"github.com/l1jgo/hub/internal/identity"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/ratelimit"
	"github.com/l1jgo/hub/internal/session"
)

type fixedLookup struct{ exists bool }

func (f fixedLookup) Lookup(ctx context.Context, name string) (identity.LookupResponse, error) {
	return identity.LookupResponse{Exists: f.exists, CanonicalName: name}, nil
}

func newMachine(t *testing.T, exists bool) (*Machine, *session.Store) {
	t.Helper()
	store := session.New(time.Millisecond, zap.NewNop(), nil)
	resolver, err := identity.New(fixedLookup{exists: exists}, 16, time.Hour, time.Minute, time.Second, zap.NewNop(), nil)
	require.NoError(t, err)
	limiter := ratelimit.New()
	bus := domainevent.NewBus()
	m := New(store, resolver, limiter, nil, bus, 10*time.Minute, []float64{8, 5, 2, 0.5}, "immediate", time.Minute, nil, zap.NewNop())
	return m, store
}

func TestBegin_HappyPathThenGameConnectAdmits(t *testing.T) {
	m, _ := newMachine(t, true)

	res, err := m.Begin(context.Background(), "U1", "Steve")
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)

	verdict := m.ObserveGameConnect("Steve", model.EditionNative, "")
	require.NotNil(t, verdict.Handle)
	assert.Equal(t, model.StateAdmitted, verdict.Handle.State)
}

func TestBegin_InvalidUsernameDoesNotCreateSession(t *testing.T) {
	m, store := newMachine(t, false)

	_, err := m.Begin(context.Background(), "U1", "ghost")
	require.Error(t, err)
	_, ok := store.LookupByExternal("U1")
	assert.False(t, ok)
}

func TestBegin_RateLimitAfterThreeAttempts(t *testing.T) {
	m, store := newMachine(t, true)

	for i := 0; i < 3; i++ {
		username := []string{"steve", "alex", "herobrine"}[i]
		_, err := m.Begin(context.Background(), "U2", username)
		require.NoError(t, err)
		require.NoError(t, m.Cancel("U2"))
		// Cancel releases the external-identity slot only after the
		// store's 1ms grace period; wait for that eviction.
		time.Sleep(10 * time.Millisecond)
	}

	_, err := m.Begin(context.Background(), "U2", "enderman")
	require.Error(t, err)
	_, ok := store.LookupByUsername("enderman")
	assert.False(t, ok)
}

func TestObserveGameConnect_WrongEditionKeepsSessionPending(t *testing.T) {
	m, store := newMachine(t, true)

	_, err := m.Begin(context.Background(), "U3", "steve")
	require.NoError(t, err)

	verdict := m.ObserveGameConnect("steve", model.EditionAlternate, "")
	assert.True(t, verdict.WrongEdition)

	sess, ok := store.LookupByUsername("steve")
	require.True(t, ok)
	assert.Equal(t, model.StateAwaitingGameConnect, sess.State)
}

func TestObserveGameConnect_NotPendingAfterExpiry(t *testing.T) {
	m, store := newMachine(t, true)

	_, err := m.Begin(context.Background(), "U4", "steve")
	require.NoError(t, err)

	// Simulate the 3-minute sweeper finding the session past its
	// absolute expiry.
	expired := store.ExpireSweep(time.Now().Add(11 * time.Minute))
	require.Len(t, expired, 1)

	verdict := m.ObserveGameConnect("steve", model.EditionNative, "")
	assert.True(t, verdict.NotPending)
}
