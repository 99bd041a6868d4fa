package ephemeral

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/redis/go-redis/v9"
)

// ErrMismatch is returned when a one-time code does not match.
var ErrMismatch = errors.New("ephemeral: code mismatch")

// PutOTP stores the hash of a one-time code for userID and purpose,
// replacing any earlier code.
func (s *Store) PutOTP(ctx context.Context, userID, purpose, codeHash string, ttl time.Duration) error {
	return backendErr(s.rdb.Set(ctx, s.key("otp", purpose, userID), codeHash, ttl).Err())
}

// ConsumeOTP compares codeHash with the stored hash and deletes it on a
// match. Only the caller whose DEL removed the key succeeds.
func (s *Store) ConsumeOTP(ctx context.Context, userID, purpose, codeHash string) error {
	key := s.key("otp", purpose, userID)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return backendErr(err)
	}
	if !cryptox.Equal(stored, codeHash) {
		return ErrMismatch
	}
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return backendErr(err)
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

// MarkTOTPStep records that the time step of a TOTP factor was used. It
// returns false when the step had already been used.
func (s *Store) MarkTOTPStep(ctx context.Context, factorID string, step uint64, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key("totp", factorID, strconv.FormatUint(step, 10)), 1, ttl).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return ok, nil
}

// PutChallenge remembers a server issued challenge, such as a passkey
// enrollment nonce.
func (s *Store) PutChallenge(ctx context.Context, userID, purpose, challenge string, ttl time.Duration) error {
	return backendErr(s.rdb.Set(ctx, s.key("challenge", purpose, userID), challenge, ttl).Err())
}

// TakeChallenge returns and deletes the challenge.
func (s *Store) TakeChallenge(ctx context.Context, userID, purpose string) (string, error) {
	v, err := s.rdb.GetDel(ctx, s.key("challenge", purpose, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", backendErr(err)
	}
	return v, nil
}
