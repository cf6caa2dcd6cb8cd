package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/getgetleads/connect/internal/tokenstore"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// DefaultRefreshTimeout bounds a shared refresh, independent of any single
// caller's context.
const DefaultRefreshTimeout = 30 * time.Second

// Config holds the Manager settings.
type Config struct {
	// Providers maps each configured provider to its client registration.
	Providers map[pkgoauth.Provider]ProviderConfig

	// SafetyMargin is how long before expiry a token is treated as
	// expired. Defaults to pkgoauth.DefaultExpiryMargin.
	SafetyMargin time.Duration

	// StateTTL is the lifetime of a pending authorization. Defaults to
	// DefaultStateTTL.
	StateTTL time.Duration

	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration

	// Guest marks a guest session. Guests cannot connect providers and
	// are never reported as connected.
	Guest bool
}

// Manager owns the provider connections of one user.
//
// Thread-safe: Yes.
type Manager struct {
	cfg     Config
	store   tokenstore.Store
	states  StateStore
	backend Backend
	clock   Clock
	metrics *Metrics

	// refreshes memoizes in-flight refreshes per provider.
	refreshes singleflight.Group
}

// Option customises a Manager.
type Option func(*Manager)

// WithStateStore replaces the default in-memory state store.
func WithStateStore(states StateStore) Option {
	return func(m *Manager) {
		m.states = states
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithMetrics records flow outcomes on metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a Manager over store and backend.
func NewManager(cfg Config, store tokenstore.Store, backend Backend, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = pkgoauth.DefaultExpiryMargin
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	for provider := range cfg.Providers {
		if !provider.Valid() {
			return nil, &ConfigurationError{Provider: provider, Reason: "unsupported provider"}
		}
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		backend: backend,
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.states == nil {
		m.states = NewMemoryStateStore()
	}
	if cs, ok := m.states.(interface{ setClock(func() time.Time) }); ok {
		cs.setClock(m.clock.Now)
	}
	return m, nil
}

// Providers returns the supported providers that have a client registration.
func (m *Manager) Providers() []pkgoauth.Provider {
	var out []pkgoauth.Provider
	for _, p := range pkgoauth.SupportedProviders() {
		if _, ok := m.cfg.Providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// IsGuest reports whether the Manager serves a guest session.
func (m *Manager) IsGuest() bool {
	return m.cfg.Guest
}

// IsConnected reports whether provider has a session that is unexpired or
// can be refreshed. It never refreshes and never calls the network.
func (m *Manager) IsConnected(ctx context.Context, provider pkgoauth.Provider) bool {
	_, ok := m.GetSession(ctx, provider)
	return ok
}

// GetSession returns a copy of the connected session for provider. The
// profile it carries is for display only.
func (m *Manager) GetSession(ctx context.Context, provider pkgoauth.Provider) (*pkgoauth.Session, bool) {
	if m.cfg.Guest || !provider.Valid() {
		return nil, false
	}
	session, err := m.store.Get(ctx, provider)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			logging.Warn("OAuth", "Failed to read session for %s: %v", provider, err)
		}
		return nil, false
	}
	if !session.Usable(m.clock.Now()) {
		return nil, false
	}
	return session, true
}

// Sessions returns every connected session.
func (m *Manager) Sessions(ctx context.Context) ([]*pkgoauth.Session, error) {
	if m.cfg.Guest {
		return nil, nil
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	now := m.clock.Now()
	var out []*pkgoauth.Session
	for _, session := range all {
		if session.Usable(now) {
			out = append(out, session)
		}
	}
	return out, nil
}

// Disconnect removes the session for provider.
func (m *Manager) Disconnect(ctx context.Context, provider pkgoauth.Provider) error {
	if !provider.Valid() {
		return &ConfigurationError{Provider: provider, Reason: "unsupported provider"}
	}
	if err := m.store.Delete(ctx, provider); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", provider, err)
	}
	logging.Audit(logging.AuditEvent{Event: "session_deleted", Provider: string(provider), Outcome: "success", Detail: "disconnect"})
	return nil
}

// Logout removes every session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	logging.Audit(logging.AuditEvent{Event: "sessions_cleared", Outcome: "success", Detail: "logout"})
	return nil
}

// SweepExpiredStates drops expired pending authorizations when the state
// store keeps them in process memory. Redis expires them on its own.
func (m *Manager) SweepExpiredStates() int {
	if s, ok := m.states.(*MemoryStateStore); ok {
		return s.Sweep()
	}
	return 0
}

// dropSession deletes the stored session for old.Provider, but only if the
// store still holds old's tokens. A session written meanwhile by a
// successful callback or refresh is left alone.
func (m *Manager) dropSession(ctx context.Context, old *pkgoauth.Session, reason string) {
	current, err := m.store.Get(ctx, old.Provider)
	if err != nil {
		return
	}
	if current.AccessToken != old.AccessToken || current.RefreshToken != old.RefreshToken {
		logging.Debug("OAuth", "Session for %s was replaced, not deleting", old.Provider)
		return
	}
	if err := m.store.Delete(ctx, old.Provider); err != nil {
		logging.Error("OAuth", err, "Failed to delete session for %s", old.Provider)
		return
	}
	logging.Audit(logging.AuditEvent{Event: "session_deleted", Provider: string(old.Provider), Outcome: "success", Detail: reason})
}
