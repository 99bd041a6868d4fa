// Package ephemeral keeps short-lived authorization state in Redis: flow
// sessions, authorization codes, lockout counters, one-time codes,
// impersonation grants and refresh family pointers.
package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "tollgate:"

var (
	ErrNotFound = errors.New("ephemeral: not found")
	// ErrReplayed is returned when a single-use value was already taken.
	ErrReplayed = errors.New("ephemeral: already used")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("ephemeral: concurrent update")
)

// Store is the Redis-backed ephemeral store. Safe for concurrent use.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New wraps an existing client. An empty prefix means DefaultKeyPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial connects to the Redis server at url (redis://host:port/db).
func Dial(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ephemeral: parse url: %w", err)
	}
	s := New(redis.NewClient(opts), prefix)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return backendErr(s.rdb.Ping(ctx).Err())
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) key(kind string, parts ...string) string {
	return s.prefix + kind + ":" + strings.Join(parts, ":")
}

// backendErr maps Redis failures onto store.ErrTransient so callers treat
// both stores alike.
func backendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("ephemeral: %w: %v", store.ErrTransient, err)
}

func (s *Store) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ephemeral: encode: %w", err)
	}
	return backendErr(s.rdb.Set(ctx, key, data, ttl).Err())
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return backendErr(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ephemeral: decode: %w", err)
	}
	return nil
}

func (s *Store) takeJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		return backendErr(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ephemeral: decode: %w", err)
	}
	return nil
}
