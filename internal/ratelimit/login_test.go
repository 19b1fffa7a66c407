package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLimiter(t *testing.T, burst int) (*LoginLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{
		LoginRateEnabled: true,
		LoginRatePerSec:  0.01,
		LoginBurst:       burst,
	}
	return NewLoginLimiter(cfg, client, zaptest.NewLogger(t), nil), mr
}

func TestLoginLimiterDeniesAfterBurst(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "user", "10.0.0.1", "ana@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
	}

	res, err := limiter.Allow(ctx, "user", "10.0.0.1", "ana@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter.Seconds(), 0.0)
}

func TestLoginLimiterBucketsAreIndependentPerAddress(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "admin", "10.0.0.1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "admin", "10.0.0.2", "b@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLoginLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	res, err := limiter.Allow(context.Background(), "user", "10.0.0.1", "ana@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestDisabledLimiterAllows(t *testing.T) {
	limiter := NewLoginLimiter(config.Config{}, nil, zaptest.NewLogger(t), nil)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "user", "", "")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockAccountIsExclusive(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5)
	ctx := context.Background()

	release, ok, err := limiter.LockAccount(ctx, "user", "ana@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = limiter.LockAccount(ctx, "user", "ANA@example.com ")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, err = limiter.LockAccount(ctx, "user", "ana@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountLockReleaseNeedsHolderToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := newAccountLock(client)
	ctx := context.Background()

	token, ok, err := lock.acquire(ctx, "admin", "Root@Example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("quickcart:login:lock:admin:root@example.com"))

	require.NoError(t, lock.release(ctx, "admin", "root@example.com", "someone-else"))
	assert.True(t, mr.Exists("quickcart:login:lock:admin:root@example.com"))

	// guards lock independently
	_, ok, err = lock.acquire(ctx, "user", "root@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.release(ctx, "admin", "root@example.com", token))
	assert.False(t, mr.Exists("quickcart:login:lock:admin:root@example.com"))
}

func TestAccountLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := newAccountLock(client)
	ctx := context.Background()

	_, ok, err := lock.acquire(ctx, "user", "ana@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(accountLockTTL + time.Second)
	_, ok, err = lock.acquire(ctx, "user", "ana@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	var missing *accountLock
	_, _, err = missing.acquire(ctx, "user", "ana@example.com")
	assert.ErrorIs(t, err, errAccountLockUnavailable)
}
