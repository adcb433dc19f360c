package config

import (
	"context"
	"strconv"
	"time"

	"termbroker/internal/cache"
	"termbroker/internal/logging"
)

const (
	sessionTimeoutKey     = "termbroker:config:session_timeout_seconds"
	bufferSizeKey         = "termbroker:config:buffer_size"
	defaultSessionTimeout = 7 * 24 * time.Hour
	defaultBufferSize     = 2000
	// runtimeConfigTTL is set far longer than any real session lifetime so a
	// value an operator pushes survives until explicitly replaced; cache.Set
	// treats a literal 0 as "use the cache's 30s default", which would make
	// the config silently revert.
	runtimeConfigTTL = 24 * time.Hour * 365
)

// RuntimeStore holds the two knobs the Session Manager reads at run time:
// how long an idle session is kept alive (read on every reconnect, list and
// cleanup), and how many output chunks each session's history retains (read
// when a session is created). It is backed by cache.RedisCache
// so a value pushed from one process instance (or set by an operator via
// redis-cli) is visible to every other instance without a restart.
type RuntimeStore struct {
	cache *cache.RedisCache
}

// NewRuntimeStore wraps c as the backing store for runtime session config.
func NewRuntimeStore(c *cache.RedisCache) *RuntimeStore {
	return &RuntimeStore{cache: c}
}

// SessionTimeout implements terminal.ConfigSource.
func (r *RuntimeStore) SessionTimeout(ctx context.Context) time.Duration {
	raw, err := r.cache.Get(ctx, sessionTimeoutKey)
	if err != nil {
		return defaultSessionTimeout
	}
	secs, err := strconv.Atoi(string(raw))
	if err != nil || secs <= 0 {
		logging.S().Warnw("invalid stored session_timeout, using default", "value", string(raw))
		return defaultSessionTimeout
	}
	return time.Duration(secs) * time.Second
}

// SetSessionTimeout updates the shared session_timeout value.
func (r *RuntimeStore) SetSessionTimeout(ctx context.Context, d time.Duration) error {
	return r.cache.Set(ctx, sessionTimeoutKey, []byte(strconv.Itoa(int(d.Seconds()))), runtimeConfigTTL)
}

// BufferSize implements terminal.ConfigSource.
func (r *RuntimeStore) BufferSize(ctx context.Context) int {
	raw, err := r.cache.Get(ctx, bufferSizeKey)
	if err != nil {
		return defaultBufferSize
	}
	size, err := strconv.Atoi(string(raw))
	if err != nil || size < 0 {
		logging.S().Warnw("invalid stored buffer_size, using default", "value", string(raw))
		return defaultBufferSize
	}
	return size
}

// SetBufferSize updates the shared buffer_size value.
func (r *RuntimeStore) SetBufferSize(ctx context.Context, size int) error {
	return r.cache.Set(ctx, bufferSizeKey, []byte(strconv.Itoa(size)), runtimeConfigTTL)
}

// Snapshot returns both values for the GET /config endpoint.
type Snapshot struct {
	SessionTimeoutSeconds int `json:"session_timeout_seconds"`
	BufferSize            int `json:"buffer_size"`
}

// Snapshot reads both values in one call.
func (r *RuntimeStore) Snapshot(ctx context.Context) Snapshot {
	return Snapshot{
		SessionTimeoutSeconds: int(r.SessionTimeout(ctx).Seconds()),
		BufferSize:            r.BufferSize(ctx),
	}
}
