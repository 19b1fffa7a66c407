package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyAccountLock = "quickcart:login:lock:%s:%s"

	// accountLockTTL bounds how long a crashed login can hold an account.
	accountLockTTL = 10 * time.Second
)

// unlockAccountScript deletes the lock only while it still carries the holder's token.
const unlockAccountScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errAccountLockUnavailable = errors.New("account lock client not configured")

// accountLock holds one login attempt per guard and account at a time.
type accountLock struct {
	client *redis.Client
	unlock *redis.Script
	ttl    time.Duration
}

func newAccountLock(client *redis.Client) *accountLock {
	if client == nil {
		return nil
	}
	return &accountLock{
		client: client,
		unlock: redis.NewScript(unlockAccountScript),
		ttl:    accountLockTTL,
	}
}

func accountLockKey(guard, email string) string {
	return fmt.Sprintf(keyAccountLock, guard, normalizeEmail(email))
}

// acquire returns the holder token, or ok=false while another attempt holds the account.
func (l *accountLock) acquire(ctx context.Context, guard, email string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errAccountLockUnavailable
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, accountLockKey(guard, email), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *accountLock) release(ctx context.Context, guard, email, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{accountLockKey(guard, email)}, token).Err()
}
