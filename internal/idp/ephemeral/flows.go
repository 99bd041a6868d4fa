package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 4

// CreateFlow stores a new flow session until f.ExpiresAt. Ids are never
// reused: an existing key yields ErrConflict.
func (s *Store) CreateFlow(ctx context.Context, f domain.FlowSession) error {
	ttl := time.Until(f.ExpiresAt)
	if ttl <= 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("ephemeral: encode flow: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key("flow", f.ID), data, ttl).Result()
	if err != nil {
		return backendErr(err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *Store) GetFlow(ctx context.Context, id string) (domain.FlowSession, error) {
	var f domain.FlowSession
	if err := s.getJSON(ctx, s.key("flow", id), &f); err != nil {
		return domain.FlowSession{}, err
	}
	return f, nil
}

// UpdateFlow loads the session, applies fn and writes it back inside a
// WATCH/MULTI transaction, retrying when another writer got there first.
// An error from fn aborts without writing. The key keeps its TTL.
func (s *Store) UpdateFlow(ctx context.Context, id string, fn func(*domain.FlowSession) error) (domain.FlowSession, error) {
	key := s.key("flow", id)

	for range maxWatchRetries {
		var out domain.FlowSession
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var f domain.FlowSession
			if err := json.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("ephemeral: decode flow: %w", err)
			}
			if err := fn(&f); err != nil {
				return errAbort{err}
			}
			updated, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("ephemeral: encode flow: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
				return nil
			})
			if err == nil {
				out = f
			}
			return err
		}, key)

		var abort errAbort
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.As(err, &abort):
			return domain.FlowSession{}, abort.err
		default:
			return domain.FlowSession{}, backendErr(err)
		}
	}
	return domain.FlowSession{}, ErrConflict
}

// DeleteFlow drops a finished flow. Deleting an unknown flow is not an
// error.
func (s *Store) DeleteFlow(ctx context.Context, id string) error {
	return backendErr(s.rdb.Del(ctx, s.key("flow", id)).Err())
}

// errAbort carries a caller error out of a WATCH callback untouched.
type errAbort struct{ err error }

func (e errAbort) Error() string { return e.err.Error() }
func (e errAbort) Unwrap() error { return e.err }
