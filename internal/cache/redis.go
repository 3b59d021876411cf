// Package cache provides the cross-instance cache tier used by
// translation and persistence: a thin, mockable wrapper
// around a Redis client, constructed from a URL-or-host string with a
// best-effort ping at boot.
package cache

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the minimal surface every cache consumer needs; production
// code gets *Adapter, tests get a fake.
type Client interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// Adapter wraps *redis.Client to satisfy Client.
type Adapter struct {
	raw *redis.Client
}

// New builds a client from a REDIS_URL-like string, accepting either a
// plain host:port or a redis://, rediss:// URL, and pings it once with a
// short deadline without failing boot if the ping does not succeed.
func New(raw string) *Adapter {
	if raw == "" {
		raw = "localhost:6379"
	}
	addr, password, db := parseRedisURL(raw)
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = client.Ping(ctx).Err()

	return &Adapter{raw: client}
}

func (a *Adapter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := a.raw.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return a.raw.Set(ctx, key, val, ttl).Err()
}

func (a *Adapter) Del(ctx context.Context, key string) error {
	return a.raw.Del(ctx, key).Err()
}

func (a *Adapter) Close() error {
	return a.raw.Close()
}

var _ Client = (*Adapter)(nil)

func parseRedisURL(raw string) (addr, password string, db int) {
	addr = raw
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		if u, err := url.Parse(raw); err == nil {
			addr = u.Host
			if u.User != nil {
				if pw, ok := u.User.Password(); ok {
					password = pw
				}
			}
			if p := strings.Trim(u.Path, "/"); p != "" {
				if n, err := strconv.Atoi(p); err == nil {
					db = n
				}
			}
		}
	}
	return addr, password, db
}
