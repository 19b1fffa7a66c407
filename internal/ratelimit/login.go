package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	keyLoginIP      = "quickcart:login:ip:%s"
	keyLoginAccount = "quickcart:login:account:%s:%s"
)

// LoginLimiter throttles credential checks per client address and per account.
// A nil or disabled limiter allows everything.
type LoginLimiter struct {
	enabled bool
	log     *zap.Logger
	metrics *metrics.Metrics

	bucket *TokenBucket
	lock   *accountLock

	rate  float64
	burst int
}

func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewLoginLimiter(cfg config.Config, client *redis.Client, log *zap.Logger, m *metrics.Metrics) *LoginLimiter {
	if !cfg.LoginRateEnabled || client == nil || cfg.LoginRatePerSec <= 0 || cfg.LoginBurst <= 0 {
		if log != nil {
			log.Info("login rate limiting disabled")
		}
		return &LoginLimiter{}
	}
	return &LoginLimiter{
		enabled: true,
		log:     log.Named("ratelimit.login"),
		metrics: m,
		bucket:  NewTokenBucket(client),
		lock:    newAccountLock(client),
		rate:    cfg.LoginRatePerSec,
		burst:   cfg.LoginBurst,
	}
}

func (l *LoginLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow checks both the client address bucket and the account bucket.
// Redis failures fail open so an outage does not lock everyone out.
func (l *LoginLimiter) Allow(ctx context.Context, guard, clientIP, email string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}

	keys := []string{
		fmt.Sprintf(keyLoginIP, strings.TrimSpace(clientIP)),
		fmt.Sprintf(keyLoginAccount, guard, normalizeEmail(email)),
	}
	for _, key := range keys {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err != nil {
			l.log.Warn("login rate limit check failed", zap.Error(err))
			return &RateLimitResult{Allowed: true}, nil
		}
		if !res.Allowed {
			l.metrics.RecordRateLimitDenied(ctx, "login", "bucket_empty")
			return res, nil
		}
	}
	l.metrics.RecordRateLimitAllowed(ctx, "login")
	return &RateLimitResult{Allowed: true, Limit: l.burst}, nil
}

// LockAccount serialises concurrent credential checks for one account.
// The returned release func is always safe to call.
func (l *LoginLimiter) LockAccount(ctx context.Context, guard, email string) (func(), bool, error) {
	noop := func() {}
	if !l.Enabled() {
		return noop, true, nil
	}
	token, ok, err := l.lock.acquire(ctx, guard, email)
	if err != nil || !ok {
		return noop, ok, err
	}
	return func() {
		if err := l.lock.release(context.Background(), guard, email, token); err != nil {
			l.log.Warn("login lock release failed", zap.Error(err))
		}
	}, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
