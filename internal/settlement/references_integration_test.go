//go:build integration

package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unykorn/pkg/testutil/containers"
)

func TestRedisReferenceStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	t.Run("claim is exclusive", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisReferenceStore(rc.Client, "test:settlement:", 0)
		key := ReferenceKey("SWIFT123")

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.Claim(ctx, key)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		ttl, err := rc.Client.TTL(ctx, "test:settlement:"+key).Result()
		require.NoError(t, err)
		assert.Equal(t, time.Duration(-1), ttl, "zero ttl keeps claims forever")
	})

	t.Run("release frees the key", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisReferenceStore(rc.Client, "test:settlement:", time.Hour)
		key := ReferenceKey("FW-1")

		ok, err := store.Claim(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.Release(ctx, key))
		ok, err = store.Claim(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		ttl, err := rc.Client.TTL(ctx, "test:settlement:"+key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)
	})
}
