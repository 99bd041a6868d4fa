package ephemeral

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecordFailure bumps the failure counter for subject+ip. The window starts
// with the first failure.
func (s *Store) RecordFailure(ctx context.Context, subject, ip string, window time.Duration) (int64, error) {
	key := s.key("lock", "fail", subject, ip)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, backendErr(err)
	}
	return incr.Val(), nil
}

// Lock starts a cooldown for subject+ip and clears the failure counter.
func (s *Store) Lock(ctx context.Context, subject, ip string, cooldown time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("lock", "until", subject, ip), time.Now().Add(cooldown).UnixMilli(), cooldown)
		pipe.Del(ctx, s.key("lock", "fail", subject, ip))
		return nil
	})
	return backendErr(err)
}

// LockedFor returns the remaining cooldown, zero when not locked.
func (s *Store) LockedFor(ctx context.Context, subject, ip string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, s.key("lock", "until", subject, ip)).Result()
	if err != nil {
		return 0, backendErr(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ResetFailures clears the counter after a successful sign-in. An active
// cooldown is left alone.
func (s *Store) ResetFailures(ctx context.Context, subject, ip string) error {
	return backendErr(s.rdb.Del(ctx, s.key("lock", "fail", subject, ip)).Err())
}
