package cache

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/resilience"
)

// Guarded wraps a Remote in a circuit breaker. While the circuit is open
// every call fails fast and the cache behaves as process-local.
type Guarded struct {
	remote  Remote
	breaker *resilience.CircuitBreaker
}

func Guard(r Remote, cb *resilience.CircuitBreaker) *Guarded {
	return &Guarded{remote: r, breaker: cb}
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := g.breaker.ExecuteIgnoring(func() error {
		var err error
		data, err = g.remote.Get(ctx, key)
		return err
	}, apperrors.ErrCacheMiss)
	return data, err
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Execute(func() error {
		return g.remote.Set(ctx, key, value, ttl)
	})
}

func (g *Guarded) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := g.breaker.Execute(func() error {
		var err error
		n, err = g.remote.FlushByPattern(ctx, pattern)
		return err
	})
	return n, err
}

// State reports the breaker state for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.GetState()
}
