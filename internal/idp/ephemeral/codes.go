package ephemeral

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/redis/go-redis/v9"
)

// ReplayWindow is how long a code and its markers outlive its expiry, so a
// replay of an expired code still revokes what it was exchanged for.
const ReplayWindow = 10 * time.Minute

// retention is how long anything keyed by c is kept.
func retention(c domain.AuthorizationCode) time.Duration {
	return max(time.Until(c.ExpiresAt), 0) + ReplayWindow
}

// PutCode stores c under its hash. Expiry is enforced by the caller; the
// row is kept for ReplayWindow past it.
func (s *Store) PutCode(ctx context.Context, c domain.AuthorizationCode) error {
	if !time.Now().Before(c.ExpiresAt) {
		return ErrNotFound
	}
	return s.putJSON(ctx, s.key("code", c.Hash), c, retention(c))
}

// ConsumeCode marks the code used with SETNX. Exactly one caller gets the
// code back; every other caller within the retention gets the code
// together with ErrReplayed so it can revoke what the winner was issued.
func (s *Store) ConsumeCode(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	var c domain.AuthorizationCode
	if err := s.getJSON(ctx, s.key("code", hash), &c); err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.Hash = hash

	won, err := s.rdb.SetNX(ctx, s.key("code", hash, "used"), time.Now().UnixMilli(), retention(c)).Result()
	if err != nil {
		return domain.AuthorizationCode{}, backendErr(err)
	}
	if !won {
		return c, ErrReplayed
	}
	return c, nil
}

// BindFamily records the refresh family issued for the consumed code c.
func (s *Store) BindFamily(ctx context.Context, c domain.AuthorizationCode, familyID string) error {
	return backendErr(s.rdb.Set(ctx, s.key("code", c.Hash, "family"), familyID, retention(c)).Err())
}

// DerivedFamily returns the family bound to hash, if any.
func (s *Store) DerivedFamily(ctx context.Context, hash string) (string, error) {
	return s.getString(ctx, s.key("code", hash, "family"))
}

// MarkReplayed flags c so a winner that has not bound its family yet
// revokes it itself.
func (s *Store) MarkReplayed(ctx context.Context, c domain.AuthorizationCode) error {
	return backendErr(s.rdb.Set(ctx, s.key("code", c.Hash, "replayed"), 1, retention(c)).Err())
}

func (s *Store) IsReplayed(ctx context.Context, hash string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key("code", hash, "replayed")).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return n == 1, nil
}

func (s *Store) getString(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", backendErr(err)
	}
	return v, nil
}
