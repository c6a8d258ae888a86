package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another holder owns the lease
var ErrRunInProgress = errors.New("lease is held by another run")

// ReleaseFunc gives a lease back. It is safe to call more than once.
type ReleaseFunc func()

// RunLocker serialises batch runs that must not overlap
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRunLocker struct {
	rc     *redis.Client
	prefix string
}

// NewRedisRunLocker creates a lease backed by SET NX PX on redis
func NewRedisRunLocker(rc *redis.Client, prefix string) RunLocker {
	return &redisRunLocker{rc: rc, prefix: prefix}
}

func (l *redisRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token, err := leaseToken()
	if err != nil {
		return nil, err
	}
	fullKey := l.prefix + key

	ok, err := l.rc.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.rc, []string{fullKey}, token).Err()
		})
	}, nil
}

type localRunLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewLocalRunLocker creates an in-process lease for single instance deployments
func NewLocalRunLocker() RunLocker {
	return &localRunLocker{
		held:  make(map[string]time.Time),
		nowFn: time.Now,
	}
}

func (l *localRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrRunInProgress
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// a lease that expired and was taken over belongs to someone else now
			if current, ok := l.held[key]; ok && current.Equal(expires) {
				delete(l.held, key)
			}
		})
	}, nil
}

func leaseToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
