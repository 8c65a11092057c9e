package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrLockNotAcquired = errors.New("conversation lock not acquired")

const (
	defaultLockPrefix = "chative:lock:"
	defaultLockTTL    = 2 * time.Minute
	minLockPoll       = 25 * time.Millisecond
	maxLockPoll       = 500 * time.Millisecond
	compareAndDelete  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	compareAndExtend  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

type RedisLockerConfig struct {
	TTL    time.Duration `split_words:"true" default:"2m"`
	Prefix string        `split_words:"true" default:"chative:lock:"`
}

// RedisLocker is a Locker shared by every process that talks to the same
// Upstash database. While held, the lease is extended every TTL/3, so it
// only expires after TTL if its holder dies.
type RedisLocker struct {
	rest   *upstashREST
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(redis UpstashRedisConfig, cfg RedisLockerConfig) (*RedisLocker, error) {
	rest, err := newUpstashREST(redis)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{rest: rest, prefix: prefix, ttl: ttl}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidConversation
	}
	redisKey := l.prefix + key
	token := uuid.NewString()

	poll := minLockPoll
	for {
		ok, err := l.tryAcquire(ctx, redisKey, token)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		poll *= 2
		if poll > maxLockPoll {
			poll = maxLockPoll
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(redisKey, token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			_, err = l.rest.exec(ctx, []any{"EVAL", compareAndDelete, 1, redisKey, token})
		})
		return err
	}, nil
}

// renew keeps the lease alive until stop is closed. The lock context is
// not used: callers usually cancel it as soon as the lock is acquired.
func (l *RedisLocker) renew(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := l.extend(ctx, redisKey, token)
		cancel()
		switch {
		case err != nil:
			log.Warn().Err(err).Str("key", redisKey).Msg("extend conversation lock")
		case !held:
			log.Error().Str("key", redisKey).Msg("conversation lock lost before release")
			return
		}
	}
}

func (l *RedisLocker) extend(ctx context.Context, redisKey, token string) (bool, error) {
	resp, err := l.rest.exec(ctx, []any{"EVAL", compareAndExtend, 1, redisKey, token, l.ttl.Milliseconds()})
	if err != nil {
		return false, err
	}
	var n int64
	if err := json.Unmarshal(bytes.TrimSpace(resp.Result), &n); err != nil {
		return false, fmt.Errorf("decode extend response: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLocker) tryAcquire(ctx context.Context, redisKey, token string) (bool, error) {
	resp, err := l.rest.exec(ctx, []any{"SET", redisKey, token, "NX", "PX", l.ttl.Milliseconds()})
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return false, nil
	}
	var status string
	if err := json.Unmarshal(result, &status); err != nil {
		return false, fmt.Errorf("decode lock response: %w", err)
	}
	return status == "OK", nil
}
