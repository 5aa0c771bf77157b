package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lockredis "github.com/tendant/content-lifecycle/pkg/lifecycle/lock/redis"
)

func newTestLocker(t *testing.T) *lockredis.Locker {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := lockredis.NewClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := lockredis.DefaultConfig()
	cfg.KeyPrefix = "test:" + uuid.NewString() + ":"
	return lockredis.New(client, cfg, nil)
}

func TestLocker_MutualExclusion(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "changelog")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_ContextCancelled(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "busy")
	require.NoError(t, err)
	defer unlock()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
