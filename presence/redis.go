// Package presence answers whether an agent is online. Redis is the shared
// implementation: agents heartbeat a TTL key and are online while it exists.
package presence

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis API used for presence tracking.
type Client interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Options configures Redis presence.
type Options struct {
	KeyPrefix string
	TTL       time.Duration
}

// Redis tracks presence as TTL keys named <prefix><agent id>.
type Redis struct {
	client Client
	opts   Options
}

// NewRedis wraps an existing client.
func NewRedis(client Client, optFns ...func(o *Options)) *Redis {
	opts := Options{KeyPrefix: "presence:", TTL: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}

	return &Redis{client: client, opts: opts}
}

// Dial connects to addr, verifies the connection with PING and returns the
// presence service together with a close function.
func Dial(ctx context.Context, addr string, optFns ...func(o *Options)) (*Redis, func() error, error) {
	if addr == "" {
		return nil, nil, fmt.Errorf("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedis(rdb, optFns...), rdb.Close, nil
}

func (r *Redis) key(agentID string) string { return r.opts.KeyPrefix + agentID }

// QueryPresence implements core.Presence.
func (r *Redis) QueryPresence(ctx context.Context, agentID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Heartbeat marks agentID online for the configured TTL.
func (r *Redis) Heartbeat(ctx context.Context, agentID string) error {
	if err := r.client.Set(ctx, r.key(agentID), time.Now().UTC().Format(time.RFC3339), r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MarkOffline removes the presence key of agentID.
func (r *Redis) MarkOffline(ctx context.Context, agentID string) error {
	if err := r.client.Del(ctx, r.key(agentID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
