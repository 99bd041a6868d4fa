package ephemeral

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetFamilyHead points the family at its newest refresh token.
func (s *Store) SetFamilyHead(ctx context.Context, familyID, tokenID string, ttl time.Duration) error {
	return backendErr(s.rdb.Set(ctx, s.key("family", familyID, "head"), tokenID, ttl).Err())
}

func (s *Store) FamilyHead(ctx context.Context, familyID string) (string, error) {
	return s.getString(ctx, s.key("family", familyID, "head"))
}

// MarkFamilyRevoked drops the head pointer and leaves a revoked marker.
func (s *Store) MarkFamilyRevoked(ctx context.Context, familyID string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("family", familyID, "head"))
		pipe.Set(ctx, s.key("family", familyID, "revoked"), time.Now().UnixMilli(), ttl)
		return nil
	})
	return backendErr(err)
}

func (s *Store) FamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key("family", familyID, "revoked")).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return n == 1, nil
}
