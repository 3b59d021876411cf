// Package translate implements the detect/cache/failover translation
// pipeline: a two-tier cache (in-process LRU backed by a shared Redis
// tier) in front of an ordered list of provider backends, with
// per-fingerprint in-flight deduplication so a burst of identical
// messages issues at most one upstream call.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/l1jgo/hub/internal/cache"
)

// Provider is a single translation backend. Providers are tried in the
// order declared by configuration; the first success wins.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (translated string, confidence float64, err error)
}

// Result is a completed translation, cached and returned to callers.
type Result struct {
	Text       string
	Confidence float64
	Provider   string
	FromCache  bool
}

type Service struct {
	providers     []Provider
	minConfidence float64
	timeout       time.Duration
	local         *lru.Cache[string, cachedEntry]
	shared        cache.Client
	sharedTTL     time.Duration
	log           *zap.Logger

	inflightMu sync.Mutex
	inflight   map[string]*sync.WaitGroup
}

type cachedEntry struct {
	result    Result
	expiresAt time.Time
}

func New(providers []Provider, minConfidence float64, timeout time.Duration, lruSize int, shared cache.Client, sharedTTL time.Duration, log *zap.Logger) (*Service, error) {
	local, err := lru.New[string, cachedEntry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("translate: new lru: %w", err)
	}
	return &Service{
		providers:     providers,
		minConfidence: minConfidence,
		timeout:       timeout,
		local:         local,
		shared:        shared,
		sharedTTL:     sharedTTL,
		log:           log,
		inflight:      make(map[string]*sync.WaitGroup),
	}, nil
}

// SupportedPair reports whether source and target are distinct, valid
// BCP-47 tags; translation of unparsable tags is refused up front rather
// than forwarded to a provider.
func SupportedPair(source, target string) bool {
	if source == target {
		return false
	}
	if _, err := language.Parse(source); err != nil {
		return false
	}
	if _, err := language.Parse(target); err != nil {
		return false
	}
	return true
}

// Translate returns a cached or freshly produced translation. Concurrent
// calls for the same (text, sourceLang, targetLang) triple collapse into
// a single provider round trip.
func (s *Service) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	if !SupportedPair(sourceLang, targetLang) {
		return Result{}, fmt.Errorf("translate: unsupported pair %s->%s", sourceLang, targetLang)
	}

	key := fingerprint(text, sourceLang, targetLang)

	if r, ok := s.lookupLocal(key); ok {
		r.FromCache = true
		return r, nil
	}

	wg, owner := s.claim(key)
	if !owner {
		wg.Wait()
		if r, ok := s.lookupLocal(key); ok {
			r.FromCache = true
			return r, nil
		}
		return Result{}, fmt.Errorf("translate: in-flight request for %s failed", key)
	}
	defer s.release(key, wg)

	if r, ok := s.lookupShared(ctx, key); ok {
		s.local.Add(key, cachedEntry{result: r, expiresAt: time.Now().Add(s.sharedTTL)})
		r.FromCache = true
		return r, nil
	}

	result, err := s.callProviders(ctx, text, sourceLang, targetLang)
	if err != nil {
		return Result{}, err
	}

	s.local.Add(key, cachedEntry{result: result, expiresAt: time.Now().Add(s.sharedTTL)})
	s.storeShared(ctx, key, result)
	return result, nil
}

func (s *Service) callProviders(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	var lastErr error
	for _, p := range s.providers {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		translated, confidence, err := p.Translate(pctx, text, sourceLang, targetLang)
		cancel()
		if err != nil {
			s.log.Warn("translation provider failed", zap.String("provider", p.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		if confidence < s.minConfidence {
			s.log.Debug("translation below confidence floor, trying next provider",
				zap.String("provider", p.Name()), zap.Float64("confidence", confidence))
			continue
		}
		return Result{Text: translated, Confidence: confidence, Provider: p.Name()}, nil
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("translate: all providers failed, last error: %w", lastErr)
	}
	return Result{}, fmt.Errorf("translate: no provider met the confidence floor")
}

func (s *Service) lookupLocal(key string) (Result, bool) {
	entry, ok := s.local.Get(key)
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expiresAt) {
		s.local.Remove(key)
		return Result{}, false
	}
	return entry.result, true
}

func (s *Service) lookupShared(ctx context.Context, key string) (Result, bool) {
	if s.shared == nil {
		return Result{}, false
	}
	val, ok, err := s.shared.Get(ctx, sharedKey(key))
	if err != nil || !ok {
		return Result{}, false
	}
	return decodeResult(val), true
}

func (s *Service) storeShared(ctx context.Context, key string, r Result) {
	if s.shared == nil {
		return
	}
	if err := s.shared.Set(ctx, sharedKey(key), encodeResult(r), s.sharedTTL); err != nil {
		s.log.Warn("translate: shared cache write failed", zap.Error(err))
	}
}

func (s *Service) claim(key string) (*sync.WaitGroup, bool) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if wg, ok := s.inflight[key]; ok {
		return wg, false
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.inflight[key] = wg
	return wg, true
}

func (s *Service) release(key string, wg *sync.WaitGroup) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
	wg.Done()
}

func fingerprint(text, source, target string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + target + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func sharedKey(fp string) string { return "translate:" + fp }

func encodeResult(r Result) string {
	return fmt.Sprintf("%s\x1f%f\x1f%s", r.Provider, r.Confidence, r.Text)
}

func decodeResult(s string) Result {
	var provider, text string
	var confidence float64
	parts := splitN3(s, '\x1f')
	if len(parts) == 3 {
		provider = parts[0]
		fmt.Sscanf(parts[1], "%f", &confidence)
		text = parts[2]
	}
	return Result{Provider: provider, Confidence: confidence, Text: text}
}

func splitN3(s string, sep byte) []string {
	var out []string
	start := 0
	count := 0
	for i := 0; i < len(s) && count < 2; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
			count++
		}
	}
	out = append(out, s[start:])
	return out
}
