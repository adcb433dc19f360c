package config

import (
	"context"
	"testing"
	"time"

	"termbroker/internal/cache"
)

func newTestRuntimeStore() *RuntimeStore {
	return NewRuntimeStore(cache.NewRedisCache(nil))
}

func TestRuntimeStoreDefaultsWhenUnset(t *testing.T) {
	r := newTestRuntimeStore()
	ctx := context.Background()

	if got := r.SessionTimeout(ctx); got != defaultSessionTimeout {
		t.Fatalf("SessionTimeout() = %v, want default %v", got, defaultSessionTimeout)
	}
	if got := r.BufferSize(ctx); got != defaultBufferSize {
		t.Fatalf("BufferSize() = %d, want default %d", got, defaultBufferSize)
	}
}

func TestRuntimeStoreRoundTrip(t *testing.T) {
	r := newTestRuntimeStore()
	ctx := context.Background()

	if err := r.SetSessionTimeout(ctx, 90*time.Second); err != nil {
		t.Fatalf("SetSessionTimeout() = %v", err)
	}
	if err := r.SetBufferSize(ctx, 500); err != nil {
		t.Fatalf("SetBufferSize() = %v", err)
	}

	if got := r.SessionTimeout(ctx); got != 90*time.Second {
		t.Fatalf("SessionTimeout() = %v, want 90s", got)
	}
	if got := r.BufferSize(ctx); got != 500 {
		t.Fatalf("BufferSize() = %d, want 500", got)
	}

	snap := r.Snapshot(ctx)
	if snap.SessionTimeoutSeconds != 90 || snap.BufferSize != 500 {
		t.Fatalf("Snapshot() = %+v, want {90 500}", snap)
	}
}
