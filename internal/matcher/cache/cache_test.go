package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemRemote() *memRemote {
	return &memRemote{data: make(map[string][]byte)}
}

func (m *memRemote) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, apperrors.ErrCacheMiss
	}
	return v, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memRemote) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type entry struct {
	IDs   []int `json:"ids"`
	Count int   `json:"count"`
}

func TestLocalOnly(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry]("match", 8, nil, time.Minute)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "a=codd")
	assert.False(t, ok)

	c.Set(ctx, "a=codd", entry{IDs: []int{0, 3}, Count: 2})
	got, ok := c.Get(ctx, "a=codd")
	require.True(t, ok)
	assert.Equal(t, []int{0, 3}, got.IDs)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeCachesResult(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry]("match", 8, nil, time.Minute)
	require.NoError(t, err)

	var calls int
	compute := func() (entry, error) {
		calls++
		return entry{Count: 7}, nil
	}
	v, hit, err := c.GetOrCompute(ctx, "t=relational", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v.Count)

	v, hit, err = c.GetOrCompute(ctx, "t=relational", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, v.Count)
	assert.Equal(t, 1, calls)
}

func TestGetOrComputeError(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry]("match", 8, nil, time.Minute)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(ctx, "k", func() (entry, error) { return entry{}, boom })
	require.ErrorIs(t, err, boom)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry]("match", 8, nil, time.Minute)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (entry, error) {
		calls.Add(1)
		<-release
		return entry{Count: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(ctx, "same", compute)
			assert.NoError(t, err)
			assert.Equal(t, 1, v.Count)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestRemoteSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	first, err := New[entry]("match", 8, remote, time.Minute)
	require.NoError(t, err)
	second, err := New[entry]("match", 8, remote, time.Minute)
	require.NoError(t, err)

	first.Set(ctx, "a=date", entry{IDs: []int{3}})
	assert.Equal(t, 1, remote.sets)

	got, ok := second.Get(ctx, "a=date")
	require.True(t, ok)
	assert.Equal(t, []int{3}, got.IDs)
}

func TestRemoteCorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	c, err := New[entry]("match", 8, remote, time.Minute)
	require.NoError(t, err)

	remote.data[c.buildKey("k")] = []byte("{not json")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	c, err := New[entry]("match", 8, remote, time.Minute)
	require.NoError(t, err)
	other, err := New[entry]("count", 8, remote, time.Minute)
	require.NoError(t, err)

	c.Set(ctx, "k", entry{Count: 1})
	other.Set(ctx, "k", entry{Count: 2})
	require.NoError(t, c.Invalidate(ctx))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	got, ok := other.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2, got.Count)
}

func TestBuildKeyIsStableAndPrefixed(t *testing.T) {
	c, err := New[entry]("match", 1, nil, 0)
	require.NoError(t, err)
	k := c.buildKey("a=codd")
	assert.Equal(t, k, c.buildKey("a=codd"))
	assert.NotEqual(t, k, c.buildKey("a=date"))
	assert.Len(t, k, len("match:")+32)
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New[entry]("match", 0, nil, 0)
	require.Error(t, err)
}
