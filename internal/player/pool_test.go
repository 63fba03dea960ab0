package player_test

import (
	"context"
	"testing"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/player"
)

func TestPoolAcquireSharesLimiterByKey(t *testing.T) {
	pool := player.NewPool()
	cfg := config.RateLimit{RequestsPerMinute: 1, Burst: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := pool.Acquire(ctx, "openai", "key-a", cfg); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := pool.Acquire(ctx, "openai", "key-a", cfg); err == nil {
		t.Error("second acquire against the same exhausted burst should block until timeout")
	}
}

func TestPoolAcquireUnlimitedWhenNoRate(t *testing.T) {
	pool := player.NewPool()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := pool.Acquire(ctx, "openai", "key-b", config.RateLimit{}); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestPoolAcquireDistinctKeysDontShareBudget(t *testing.T) {
	pool := player.NewPool()
	cfg := config.RateLimit{RequestsPerMinute: 1, Burst: 1}
	ctx := context.Background()

	if err := pool.Acquire(ctx, "openai", "key-c", cfg); err != nil {
		t.Fatalf("acquire key-c: %v", err)
	}
	if err := pool.Acquire(ctx, "openai", "key-d", cfg); err != nil {
		t.Fatalf("acquire key-d should have its own budget: %v", err)
	}
}

type fakeRLBackend struct {
	calls int
}

func (f *fakeRLBackend) Complete(ctx context.Context, transcript []player.ChatMessage, maxTokens int, params map[string]string) (string, player.Usage, error) {
	f.calls++
	return "ok", player.Usage{}, nil
}

func (f *fakeRLBackend) Close() error { return nil }

func TestRateLimitWrapsComplete(t *testing.T) {
	pool := player.NewPool()
	backend := &fakeRLBackend{}
	limited := player.RateLimit(backend, pool, "openai", "key-e", config.RateLimit{RequestsPerMinute: 120, Burst: 2})

	for i := 0; i < 2; i++ {
		if _, _, err := limited.Complete(context.Background(), nil, 10, nil); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	if backend.calls != 2 {
		t.Errorf("calls = %d, want 2", backend.calls)
	}
}
