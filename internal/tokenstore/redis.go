package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "getgetleads:"

const sessionKeyPart = "session:"

// ExpiredSessionRetention is how long a session that cannot be refreshed
// stays in Redis after its access token expires. Until then readers still
// see the expired record and ask the user to reconnect, as with the other
// stores.
const ExpiredSessionRetention = 7 * 24 * time.Hour

// RedisStore keeps sessions in Redis, one JSON value per provider. It lets
// several dashboard workers share one set of provider connections.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Client returns the underlying Redis client so pending authorization
// requests can share the connection.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// Prefix returns the key prefix.
func (s *RedisStore) Prefix() string {
	return s.prefix
}

func (s *RedisStore) key(provider pkgoauth.Provider) string {
	return s.prefix + sessionKeyPart + string(provider)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, provider pkgoauth.Provider) (*pkgoauth.Session, error) {
	if err := validateProvider(provider); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(provider)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session pkgoauth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &session, nil
}

// Put implements Store. Sessions without a refresh token are kept for
// ExpiredSessionRetention past their access token expiry; refreshable
// sessions do not expire.
func (s *RedisStore) Put(ctx context.Context, session *pkgoauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var ttl time.Duration
	if !session.HasRefreshToken() && !session.ExpiresAt.IsZero() {
		ttl = max(session.ExpiresAt.Sub(s.now()), 0) + ExpiredSessionRetention
	}

	if err := s.client.Set(ctx, s.key(session.Provider), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}

	logging.Debug("TokenStore", "Stored session for %s in redis (ttl=%v)", session.Provider, ttl)
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, provider pkgoauth.Provider) error {
	if err := validateProvider(provider); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(provider)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]*pkgoauth.Session, error) {
	var out []*pkgoauth.Session
	for _, provider := range pkgoauth.SupportedProviders() {
		session, err := s.Get(ctx, provider)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// Clear implements Store. It removes every session key under the prefix,
// including keys for providers this build no longer supports.
func (s *RedisStore) Clear(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+sessionKeyPart+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}
	logging.Debug("TokenStore", "Cleared %d sessions from redis", len(keys))
	return nil
}
