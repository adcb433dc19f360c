package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisAdapter wraps a go-redis/v9 client so RedisCache depends only on
// the narrow RedisClient interface, never on go-redis directly.
type GoRedisAdapter struct {
	client *redis.Client
}

// NewGoRedisClient dials redisURL (redis://[:password@]host:port[/db], or
// rediss:// for TLS) and returns an adapter, pinging once to fail fast on a
// bad connection rather than surfacing the error on the first cache call.
func NewGoRedisClient(redisURL string) (*GoRedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &GoRedisAdapter{client: client}, nil
}

// NewGoRedisClientWithOptions builds an adapter from explicit redis.Options
// instead of a URL, for callers that need TLS config or pool tuning.
func NewGoRedisClientWithOptions(opts *redis.Options) (*GoRedisAdapter, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &GoRedisAdapter{client: client}, nil
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) (string, error) {
	return a.client.Get(ctx, key).Result()
}

func (a *GoRedisAdapter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return a.client.Set(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.client.Del(ctx, keys...).Err()
}

func (a *GoRedisAdapter) Exists(ctx context.Context, keys ...string) (int64, error) {
	return a.client.Exists(ctx, keys...).Result()
}

func (a *GoRedisAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return a.client.Expire(ctx, key, ttl).Err()
}

func (a *GoRedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	return a.client.Keys(ctx, pattern).Result()
}

func (a *GoRedisAdapter) Pipeline() RedisPipeline {
	return &GoRedisPipeline{pipe: a.client.Pipeline()}
}

func (a *GoRedisAdapter) Close() error {
	return a.client.Close()
}

func (a *GoRedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// GoRedisPipeline wraps a go-redis pipeliner so callers of
// RedisClient.Pipeline can batch commands without depending on go-redis types.
type GoRedisPipeline struct {
	pipe redis.Pipeliner
}

func (p *GoRedisPipeline) Get(ctx context.Context, key string) *StringCmd {
	cmd := p.pipe.Get(ctx, key)
	return &StringCmd{val: cmd.Val(), err: cmd.Err()}
}

func (p *GoRedisPipeline) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *StatusCmd {
	cmd := p.pipe.Set(ctx, key, value, ttl)
	return &StatusCmd{err: cmd.Err()}
}

func (p *GoRedisPipeline) Exec(ctx context.Context) ([]Cmder, error) {
	cmds, err := p.pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, err
	}

	result := make([]Cmder, len(cmds))
	for i, cmd := range cmds {
		result[i] = cmd
	}
	return result, nil
}

// NewRedisCacheFromURL dials redisURL and wraps the connection in a
// RedisCache. Callers are expected to fall back to NewRedisCache (in-memory)
// on error rather than retry the dial.
func NewRedisCacheFromURL(redisURL string, config *CacheConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	adapter, err := NewGoRedisClient(redisURL)
	if err != nil {
		return nil, err
	}

	return NewRedisCacheWithClient(adapter, config), nil
}
