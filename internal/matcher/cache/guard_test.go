package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/resilience"
)

type downRemote struct{ calls int }

var errDown = errors.New("connection refused")

func (d *downRemote) Get(context.Context, string) ([]byte, error) {
	d.calls++
	return nil, errDown
}

func (d *downRemote) Set(context.Context, string, []byte, time.Duration) error {
	d.calls++
	return errDown
}

func (d *downRemote) FlushByPattern(context.Context, string) (int64, error) {
	d.calls++
	return 0, errDown
}

func TestGuardMissesKeepCircuitClosed(t *testing.T) {
	g := Guard(newMemRemote(), resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{FailureThreshold: 1}))
	for i := 0; i < 3; i++ {
		_, err := g.Get(context.Background(), "absent")
		assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
	}
	assert.Equal(t, resilience.StateClosed, g.State())
}

func TestGuardOpensOnRemoteFailures(t *testing.T) {
	down := &downRemote{}
	g := Guard(down, resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}))
	c, err := New[entry]("match", 8, g, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "q")
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateOpen, g.State())
	assert.Equal(t, 2, down.calls)

	c.Set(ctx, "q", entry{Count: 1})
	v, ok := c.Get(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, 1, v.Count)
	assert.Equal(t, 2, down.calls)
}
