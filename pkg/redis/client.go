// Package redis backs request replay, write throttling and cron locks.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

var errNotConnected = errors.New("redis client not initialized")

// windowScript bumps a counter and starts its window on the first hit.
// Returns {count, remaining ttl in ms}.
const windowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`

// unlockScript deletes KEYS[1] only while it still holds ARGV[1].
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// commands is the part of go-redis this package drives; *redis.Client satisfies it.
type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Client struct {
	cmds   commands
	close  func() error
	prefix string
}

// New dials Redis from either MKT_REDIS_URL or the discrete address fields
// and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	c := &Client{cmds: rdb, close: rdb.Close, prefix: cfg.KeyPrefix}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return c, nil
}

func dialOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	if url := strings.TrimSpace(cfg.URL); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	}
	if opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = orDefault(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = orDefault(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = orDefault(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = orDefault(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = orDefault(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

// orDefault keeps a value set by the URL and falls back to config otherwise.
func orDefault[T comparable](fromURL, fallback T) T {
	var zero T
	if fromURL != zero {
		return fromURL
	}
	return fallback
}

// Key namespaces parts under the configured prefix, skipping blanks.
func (c *Client) Key(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	if c != nil && c.prefix != "" {
		out = append(out, c.prefix)
	}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.cmds == nil {
		return errNotConnected
	}
	return c.cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}

// Claim stores value at key only when the key is free.
func (c *Client) Claim(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if c == nil || c.cmds == nil {
		return false, errNotConnected
	}
	return c.cmds.SetNX(ctx, key, value, ttl).Result()
}

// Load returns the bytes at key, or nil when it is absent.
func (c *Client) Load(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.cmds == nil {
		return nil, errNotConnected
	}
	b, err := c.cmds.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

// Save overwrites key.
func (c *Client) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.cmds == nil {
		return errNotConnected
	}
	return c.cmds.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Forget(ctx context.Context, key string) error {
	if c == nil || c.cmds == nil {
		return errNotConnected
	}
	return c.cmds.Del(ctx, key).Err()
}

// Window is the state of a fixed-window counter after one hit.
type Window struct {
	Count   int64
	Allowed bool
	ResetIn time.Duration
}

// Hit counts one request against scope within a fixed window.
func (c *Client) Hit(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if c == nil || c.cmds == nil {
		return Window{}, errNotConnected
	}
	vals, err := c.cmds.Eval(ctx, windowScript, []string{c.Key("rate", scope)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate window %s: %w", scope, err)
	}
	if len(vals) != 2 {
		return Window{}, fmt.Errorf("rate window %s: unexpected reply %v", scope, vals)
	}
	w := Window{Count: vals[0], Allowed: vals[0] <= limit, ResetIn: time.Duration(vals[1]) * time.Millisecond}
	if w.ResetIn <= 0 {
		w.ResetIn = window
	}
	return w, nil
}

// Lock takes key for owner unless someone else holds it.
func (c *Client) Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.Claim(ctx, key, []byte(owner), ttl)
}

// Unlock releases key if owner still holds it and reports whether it did.
func (c *Client) Unlock(ctx context.Context, key, owner string) (bool, error) {
	if c == nil || c.cmds == nil {
		return false, errNotConnected
	}
	n, err := c.cmds.Eval(ctx, unlockScript, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
