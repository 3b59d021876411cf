package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/model"
)

type fakeClient struct {
	calls int
	resp  LookupResponse
	err   error
	delay time.Duration
}

func (f *fakeClient) Lookup(ctx context.Context, canonicalName string) (LookupResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return LookupResponse{}, ctx.Err()
		}
	}
	return f.resp, f.err
}

func newTestResolver(t *testing.T, client LookupClient) *Resolver {
	t.Helper()
	r, err := New(client, 16, 24*time.Hour, 10*time.Minute, 3*time.Second, zap.NewNop(), nil)
	require.NoError(t, err)
	return r
}

func TestResolve_StripsAlternateEditionPrefix(t *testing.T) {
	client := &fakeClient{resp: LookupResponse{Exists: true, CanonicalName: "steve", PlatformID: "p1"}}
	r := newTestResolver(t, client)

	res, err := r.Resolve(context.Background(), ".steve")
	require.NoError(t, err)
	assert.Equal(t, model.EditionAlternate, res.Edition)
	assert.True(t, res.Exists)

	res2, err := r.Resolve(context.Background(), "steve")
	require.NoError(t, err)
	assert.Equal(t, model.EditionNative, res2.Edition)
}

func TestResolve_CachesPositiveAndSkipsSecondCall(t *testing.T) {
	client := &fakeClient{resp: LookupResponse{Exists: true, CanonicalName: "steve"}}
	r := newTestResolver(t, client)

	_, err := r.Resolve(context.Background(), "Steve")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "STEVE")
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls, "second lookup should be served from cache")
}

func TestResolve_TimeoutReturnsLookupUnavailableWithoutCaching(t *testing.T) {
	client := &fakeClient{delay: 50 * time.Millisecond, err: errors.New("slow")}
	r, err := New(client, 16, time.Hour, time.Minute, 10*time.Millisecond, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "steve")
	assert.ErrorIs(t, err, ErrLookupUnavailable)

	// no cache entry should have been written on failure
	_, ok := r.cache.Get("steve")
	assert.False(t, ok)
}

func TestResolve_EmptyUsernameIsInvalidInput(t *testing.T) {
	r := newTestResolver(t, &fakeClient{})
	_, err := r.Resolve(context.Background(), ".")
	require.Error(t, err)
}
