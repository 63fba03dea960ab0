package player

import (
	"context"
	"sync"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
)

// tokenBucket throttles calls to at most RequestsPerMinute/60 per
// second with a configurable burst, refilled on a ticker. Modeled on
// the channel-based rate limiter pattern (bucket as a buffered
// channel, background goroutine refills it) used elsewhere in the
// pack for provider throttling.
type tokenBucket struct {
	tokens chan struct{}
	stop   chan struct{}
}

func newTokenBucket(cfg config.RateLimit) *tokenBucket {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	b := &tokenBucket{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		b.tokens <- struct{}{}
	}
	period := time.Minute / time.Duration(cfg.RequestsPerMinute)
	if period <= 0 {
		period = time.Millisecond
	}
	go b.refill(period)
	return b
}

func (b *tokenBucket) refill(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case b.tokens <- struct{}{}:
			default:
			}
		case <-b.stop:
			return
		}
	}
}

func (b *tokenBucket) acquire(ctx context.Context) error {
	if b == nil {
		return nil
	}
	select {
	case <-b.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *tokenBucket) close() {
	if b == nil {
		return
	}
	close(b.stop)
}

// Pool shares rate limiters per (provider, credential) tuple, so player entries that share a provider account
// also share its throughput budget instead of each hammering it
// independently.
type Pool struct {
	mu       sync.Mutex
	limiters map[string]*tokenBucket
}

// NewPool creates an empty connection pool.
func NewPool() *Pool {
	return &Pool{limiters: make(map[string]*tokenBucket)}
}

func poolKey(provider, credential string) string {
	return provider + "\x00" + credential
}

// Acquire blocks until a request slot for (provider, credential) is
// available under cfg's rate limit, creating that pair's shared token
// bucket from cfg on first use. A zero-value RequestsPerMinute disables
// throttling for that pair entirely.
func (p *Pool) Acquire(ctx context.Context, provider, credential string, cfg config.RateLimit) error {
	return p.limiter(provider, credential, cfg).acquire(ctx)
}

func (p *Pool) limiter(provider, credential string, cfg config.RateLimit) *tokenBucket {
	key := poolKey(provider, credential)
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	l := newTokenBucket(cfg)
	p.limiters[key] = l
	return l
}

// Close stops every rate limiter owned by the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.limiters {
		l.close()
	}
}

// rateLimited wraps a Backend so every Complete call first acquires a
// slot from the shared (provider, credential) token bucket.
type rateLimited struct {
	Backend
	pool       *Pool
	provider   string
	credential string
	cfg        config.RateLimit
}

// RateLimit wraps backend so its Complete calls are throttled through
// pool's shared token bucket for (provider, credential). credential
// identifies the account/API key in use, so two players with the same
// provider and credential share its budget; the same key under two
// different provider strings gets two separate budgets.
func RateLimit(backend Backend, pool *Pool, provider, credential string, cfg config.RateLimit) Backend {
	return &rateLimited{Backend: backend, pool: pool, provider: provider, credential: credential, cfg: cfg}
}

func (r *rateLimited) Complete(ctx context.Context, transcript []ChatMessage, maxTokens int, requestParams map[string]string) (string, Usage, error) {
	if err := r.pool.Acquire(ctx, r.provider, r.credential, r.cfg); err != nil {
		return "", Usage{}, err
	}
	return r.Backend.Complete(ctx, transcript, maxTokens, requestParams)
}
