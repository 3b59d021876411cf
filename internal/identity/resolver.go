// Package identity resolves a game-platform username to a canonical
// identifier and existence verdict via an external lookup service,
// caching the result with a positive/negative TTL split.
package identity

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/l1jgo/hub/internal/herr"
	"github.com/l1jgo/hub/internal/model"
)

// LookupClient is the external username->UUID lookup collaborator. It is
// satisfied by an HTTPS client in production and a mock in tests.
type LookupClient interface {
	Lookup(ctx context.Context, canonicalName string) (LookupResponse, error)
}

// LookupResponse is the raw collaborator result.
type LookupResponse struct {
	Exists        bool
	CanonicalName string
	PlatformID    string
}

// Result is what callers of Resolve receive.
type Result struct {
	Exists        bool
	CanonicalName string
	PlatformID    string
	Edition       model.Edition
}

var ErrLookupUnavailable = errors.New("identity: lookup unavailable")

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Metrics is the narrow surface the resolver needs from the metrics
// registry, kept as an interface so tests don't need a real Prometheus
// registry.
type Metrics interface {
	IncLookupTimeout()
}

type Resolver struct {
	client LookupClient
	cache  *lru.Cache[string, cacheEntry]
	posTTL time.Duration
	negTTL time.Duration
	timeout time.Duration
	caser  cases.Caser
	log    *zap.Logger
	metrics Metrics
}

type noopMetrics struct{}

func (noopMetrics) IncLookupTimeout() {}

func New(client LookupClient, cacheSize int, posTTL, negTTL, timeout time.Duration, log *zap.Logger, metrics Metrics) (*Resolver, error) {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Resolver{
		client:  client,
		cache:   cache,
		posTTL:  posTTL,
		negTTL:  negTTL,
		timeout: timeout,
		caser:   cases.Lower(language.Und),
		log:     log,
		metrics: metrics,
	}, nil
}

// Resolve strips a leading "." into an edition tag, normalizes the
// remaining name to the cache key, and consults the cache before calling
// the external lookup client with a bounded timeout.
func (r *Resolver) Resolve(ctx context.Context, rawUsername string) (Result, error) {
	edition := model.EditionNative
	name := rawUsername
	if strings.HasPrefix(name, ".") {
		edition = model.EditionAlternate
		name = name[1:]
	}
	if name == "" {
		return Result{}, herr.New(herr.InvalidInput, "empty username")
	}
	key := r.caser.String(name)

	if entry, ok := r.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
		res := entry.result
		res.Edition = edition
		return res, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Up to 3 attempts with jittered exponential backoff (200ms base,
	// 2s cap), all inside the one lookup deadline.
	var resp LookupResponse
	var err error
	backoff := 200 * time.Millisecond
	for attempt := 1; ; attempt++ {
		resp, err = r.client.Lookup(lookupCtx, key)
		if err == nil || attempt == 3 || lookupCtx.Err() != nil {
			break
		}
		wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		select {
		case <-time.After(wait):
		case <-lookupCtx.Done():
		}
		if backoff *= 2; backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
	}
	if err != nil {
		if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			r.metrics.IncLookupTimeout()
		}
		r.log.Warn("identity lookup failed", zap.String("name", key), zap.Error(err))
		return Result{}, ErrLookupUnavailable
	}

	result := Result{
		Exists:        resp.Exists,
		CanonicalName: resp.CanonicalName,
		PlatformID:    resp.PlatformID,
	}
	ttl := r.negTTL
	if result.Exists {
		ttl = r.posTTL
	}
	r.cache.Add(key, cacheEntry{result: result, expiresAt: time.Now().Add(ttl)})

	result.Edition = edition
	return result, nil
}

// Invalidate drops the cached entry for a successfully admitted name so a
// later rename or rebind isn't masked by a stale positive cache hit.
func (r *Resolver) Invalidate(canonicalName string) {
	r.cache.Remove(r.caser.String(canonicalName))
}
