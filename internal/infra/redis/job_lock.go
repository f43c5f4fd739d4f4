package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/risk-alert-engine/internal/lock"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 30 * time.Minute
	lockKeyPrefix  = "joblock:"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.Locker = (*JobLock)(nil)

// JobLock is a Redis-backed mutex keyed by job name. The TTL bounds how long
// a crashed holder can keep the job blocked.
type JobLock struct {
	client  *goredis.Client
	ttl     time.Duration
	tokenFn func() string
	script  *goredis.Script
}

func NewJobLock(client *goredis.Client, ttl time.Duration) (*JobLock, error) {
	return newJobLock(client, ttl, uuid.NewString)
}

func newJobLock(client *goredis.Client, ttl time.Duration, tokenFn func() string) (*JobLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if tokenFn == nil {
		tokenFn = uuid.NewString
	}

	return &JobLock{
		client:  client,
		ttl:     ttl,
		tokenFn: tokenFn,
		script:  releaseScript,
	}, nil
}

func (l *JobLock) TryAcquire(ctx context.Context, name string) (lock.ReleaseFunc, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("job lock is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, false, fmt.Errorf("job name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := lockKeyPrefix + normalized
	token := l.tokenFn()

	err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire job lock %q: %w", normalized, err)
	}

	release := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release job lock %q: %w", normalized, err)
		}
		return nil
	}

	return release, true, nil
}
