package translate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/cache"
)

type countingProvider struct {
	name       string
	calls      int32
	confidence float64
	err        error
	reply      string
}

func (p *countingProvider) Name() string { return p.name }
func (p *countingProvider) Translate(_ context.Context, text, _, _ string) (string, float64, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return "", 0, p.err
	}
	if p.reply != "" {
		return p.reply, p.confidence, nil
	}
	return "xx:" + text, p.confidence, nil
}

func newService(t *testing.T, providers []Provider) *Service {
	t.Helper()
	svc, err := New(providers, 0.5, time.Second, 64, cache.NewFakeClient(), time.Minute, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestTranslate_CachesSecondCallWithoutProviderCall(t *testing.T) {
	p := &countingProvider{name: "p1", confidence: 0.9}
	svc := newService(t, []Provider{p})

	r1, err := svc.Translate(context.Background(), "hello", "en", "ja")
	require.NoError(t, err)
	assert.False(t, r1.FromCache)

	r2, err := svc.Translate(context.Background(), "hello", "en", "ja")
	require.NoError(t, err)
	assert.True(t, r2.FromCache)
	assert.Equal(t, int32(1), p.calls)
}

func TestTranslate_FailoverToSecondProviderOnError(t *testing.T) {
	bad := &countingProvider{name: "bad", err: errors.New("boom")}
	good := &countingProvider{name: "good", confidence: 0.9}
	svc := newService(t, []Provider{bad, good})

	r, err := svc.Translate(context.Background(), "hi", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "good", r.Provider)
}

func TestTranslate_SkipsProviderBelowConfidenceFloor(t *testing.T) {
	low := &countingProvider{name: "low", confidence: 0.1}
	high := &countingProvider{name: "high", confidence: 0.9}
	svc := newService(t, []Provider{low, high})

	r, err := svc.Translate(context.Background(), "hi", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "high", r.Provider)
}

func TestTranslate_UnsupportedPairIsRejected(t *testing.T) {
	svc := newService(t, []Provider{&countingProvider{name: "p", confidence: 0.9}})
	_, err := svc.Translate(context.Background(), "hi", "en", "en")
	assert.Error(t, err)
}

func TestTranslate_ConcurrentIdenticalRequestsDedup(t *testing.T) {
	p := &countingProvider{name: "p1", confidence: 0.9}
	svc := newService(t, []Provider{p})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Translate(context.Background(), "concurrent", "en", "de")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), p.calls)
}
