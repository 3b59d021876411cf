package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/model"
)

func newTestStore() *Store {
	return New(10*time.Millisecond, zap.NewNop(), nil)
}

func testSession(external model.ExternalIdentity, username string, expiresAt time.Time) model.VerificationSession {
	return model.VerificationSession{
		ExternalID:     external,
		NormalizedName: username,
		RawUsername:    username,
		CreatedAt:      time.Now(),
		ExpiresAt:      expiresAt,
		State:          model.StateUsernameValidated,
	}
}

func TestCreate_RejectsDuplicateExternal(t *testing.T) {
	s := newTestStore()
	future := time.Now().Add(10 * time.Minute)

	_, err := s.Create("ext1", "steve", testSession("ext1", "steve", future))
	require.NoError(t, err)

	_, err = s.Create("ext1", "alex", testSession("ext1", "alex", future))
	require.Error(t, err)
}

func TestCreate_RejectsDuplicateUsername(t *testing.T) {
	s := newTestStore()
	future := time.Now().Add(10 * time.Minute)

	_, err := s.Create("ext1", "steve", testSession("ext1", "steve", future))
	require.NoError(t, err)

	_, err = s.Create("ext2", "steve", testSession("ext2", "steve", future))
	require.Error(t, err)
}

func TestExpireSweep_TransitionsPastExpiryAndEventuallyEvicts(t *testing.T) {
	s := newTestStore()
	past := time.Now().Add(-time.Minute)

	created, err := s.Create("ext1", "steve", testSession("ext1", "steve", past))
	require.NoError(t, err)

	expired := s.ExpireSweep(time.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, model.StateExpired, expired[0].State)

	// still visible immediately (grace period for final notification)
	_, ok := s.LookupByID(created.ID)
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.LookupByUsername("steve")
	assert.False(t, ok, "index entries should be released after grace period")
}

func TestExpireSweep_NeverTouchesAbsorbingStates(t *testing.T) {
	s := newTestStore()
	past := time.Now().Add(-time.Minute)
	sess := testSession("ext1", "steve", past)
	sess.State = model.StateAdmitted
	_, err := s.Create("ext1", "steve", sess)
	require.NoError(t, err)

	expired := s.ExpireSweep(time.Now())
	assert.Empty(t, expired)
}

func TestAdvance_UpdatesState(t *testing.T) {
	s := newTestStore()
	future := time.Now().Add(10 * time.Minute)
	created, err := s.Create("ext1", "steve", testSession("ext1", "steve", future))
	require.NoError(t, err)

	updated, err := s.Advance(created.ID, model.StateAwaitingGameConnect)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingGameConnect, updated.State)
}
