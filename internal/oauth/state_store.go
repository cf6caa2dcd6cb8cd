package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/getgetleads/connect/pkg/logging"
)

// StateStore holds pending authorization requests keyed by their state.
// Consume is get-and-delete: a state can be redeemed at most once,
// whatever the outcome of the callback that redeems it.
type StateStore interface {
	// Save stores a pending request under req.State.
	Save(ctx context.Context, req *AuthorizationRequest) error

	// Consume removes and returns the request for state. It returns
	// ErrInvalidState when the state is unknown or was already consumed.
	Consume(ctx context.Context, state string) (*AuthorizationRequest, error)
}

// MemoryStateStore is a process-local StateStore. Expired requests are
// removed by Sweep.
type MemoryStateStore struct {
	mu      sync.Mutex
	pending map[string]*AuthorizationRequest
	now     func() time.Time
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		pending: make(map[string]*AuthorizationRequest),
		now:     time.Now,
	}
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(_ context.Context, req *AuthorizationRequest) error {
	if req == nil || req.State == "" {
		return errors.New("authorization request has no state")
	}
	stored := *req
	stored.Scopes = append([]string(nil), req.Scopes...)

	s.mu.Lock()
	s.pending[hashState(req.State)] = &stored
	s.mu.Unlock()
	return nil
}

// Consume implements StateStore.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (*AuthorizationRequest, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	key := hashState(state)

	s.mu.Lock()
	req, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()

	if !ok {
		return nil, ErrInvalidState
	}
	req.State = state
	return req, nil
}

func (s *MemoryStateStore) setClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Len returns the number of pending requests.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep removes expired requests and returns how many were removed.
func (s *MemoryStateStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	count := 0
	for key, req := range s.pending {
		if req.Expired(now) {
			delete(s.pending, key)
			count++
		}
	}
	if count > 0 {
		logging.Debug("OAuth", "Swept %d expired authorization states", count)
	}
	return count
}

// RedisStateStore keeps pending requests in Redis so that the process
// handling the callback need not be the one that began the authorization.
// Keys expire with the request.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStateStore creates a Redis-backed state store. Keys are written
// as <prefix>state:<sha256(state)>.
func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStateStore) setClock(now func() time.Time) {
	s.now = now
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + "state:" + hashState(state)
}

// Save implements StateStore.
func (s *RedisStateStore) Save(ctx context.Context, req *AuthorizationRequest) error {
	if req == nil || req.State == "" {
		return errors.New("authorization request has no state")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	ttl := req.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("authorization request already expired")
	}
	if err := s.client.Set(ctx, s.key(req.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store authorization state: %w", err)
	}
	return nil
}

// Consume implements StateStore using GETDEL, so two callbacks racing on
// the same state cannot both succeed.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*AuthorizationRequest, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	var req AuthorizationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization request: %w", err)
	}
	req.State = state
	return &req, nil
}
