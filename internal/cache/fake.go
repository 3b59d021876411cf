package cache

import (
	"context"
	"sync"
	"time"
)

// FakeClient is an in-memory Client for tests in this and other packages.
type FakeClient struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{entries: make(map[string]string)}
}

func (f *FakeClient) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *FakeClient) Set(_ context.Context, key, val string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = val
	return nil
}

func (f *FakeClient) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *FakeClient) Close() error { return nil }

var _ Client = (*FakeClient)(nil)
