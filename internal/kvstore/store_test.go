package kvstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis("test", client), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newMiniRedisStore(t)
	return map[string]Store{
		"memory": NewMemory(),
		"redis":  rs,
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "refs:blob:a", "1"))
			require.NoError(t, s.Set(ctx, "refs:blob:b", "2"))
			require.NoError(t, s.Set(ctx, "other", "3"))

			v, err := s.Get(ctx, "refs:blob:a")
			require.NoError(t, err)
			assert.Equal(t, "1", v)

			keys, err := s.Scan(ctx, "refs:")
			require.NoError(t, err)
			assert.Equal(t, []string{"refs:blob:a", "refs:blob:b"}, keys)

			err = s.Update(ctx, "refs:blob:a", func(cur string, found bool) (string, error) {
				assert.True(t, found)
				return cur + "+", nil
			})
			require.NoError(t, err)
			v, _ = s.Get(ctx, "refs:blob:a")
			assert.Equal(t, "1+", v)

			err = s.Update(ctx, "fresh", func(cur string, found bool) (string, error) {
				assert.False(t, found)
				assert.Empty(t, cur)
				return "new", nil
			})
			require.NoError(t, err)
			v, _ = s.Get(ctx, "fresh")
			assert.Equal(t, "new", v)

			boom := errors.New("boom")
			err = s.Update(ctx, "fresh", func(string, bool) (string, error) { return "", boom })
			require.ErrorIs(t, err, boom)
			v, _ = s.Get(ctx, "fresh")
			assert.Equal(t, "new", v)
		})
	}
}

func TestStoreConcurrentUpdatesLoseNothing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 10

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, "counter", func(cur string, _ bool) (string, error) {
						n, _ := strconv.Atoi(cur)
						return strconv.Itoa(n + 1), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			v, err := s.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(writers), v)
		})
	}
}

func TestRedisNamespaceAndGlobEscaping(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a*b:1", "x"))
	require.NoError(t, s.Set(ctx, "aXb:1", "y"))
	assert.True(t, mr.Exists("test:a*b:1"))

	keys, err := s.Scan(ctx, "a*b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a*b:1"}, keys)
}

func TestRedisFollowsSwappedClient(t *testing.T) {
	ctx := context.Background()
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)
	c1 := redis.NewClient(&redis.Options{Addr: mr1.Addr()})
	c2 := redis.NewClient(&redis.Options{Addr: mr2.Addr()})
	t.Cleanup(func() { _ = c1.Close(); _ = c2.Close() })

	current := c1
	s := NewRedisWithSource("ns", func() redis.UniversalClient { return current })

	require.NoError(t, s.Set(ctx, "k", "first"))
	current = c2
	require.NoError(t, s.Set(ctx, "k", "second"))

	v1, err := mr1.Get("ns:k")
	require.NoError(t, err)
	v2, err := mr2.Get("ns:k")
	require.NoError(t, err)
	assert.Equal(t, "first", v1)
	assert.Equal(t, "second", v2)
}
