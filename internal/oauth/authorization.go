package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// DefaultStateTTL is how long a pending authorization request stays valid.
const DefaultStateTTL = 10 * time.Minute

// stateBytes is the amount of randomness in a state value (256 bits).
const stateBytes = 32

// AuthorizationRequest is an authorization that has been started but whose
// callback has not been handled yet.
type AuthorizationRequest struct {
	Provider    pkgoauth.Provider `json:"provider"`
	Scopes      []string          `json:"scopes"`
	RedirectURI string            `json:"redirect_uri"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`

	// CodeVerifier is the PKCE verifier, set only when PKCE is enabled.
	CodeVerifier string `json:"code_verifier,omitempty"`

	// State is the value sent to the provider. It is never persisted;
	// stores key requests by its hash.
	State string `json:"-"`

	// URL is the provider authorization URL the user must visit.
	URL string `json:"-"`
}

// Expired reports whether the request can no longer be completed at now.
func (r *AuthorizationRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// generateState returns a fresh base64url state value.
func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashState returns the storage key for a state value.
func hashState(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}

// BeginAuthorization starts an authorization for provider and returns the
// pending request. The caller opens req.URL in a browser, redirects to it,
// or prints it. When scopes is empty the provider's configured scopes, or
// DefaultScopes, are requested.
func (m *Manager) BeginAuthorization(ctx context.Context, provider pkgoauth.Provider, scopes []string) (*AuthorizationRequest, error) {
	if m.cfg.Guest {
		return nil, ErrGuestMode
	}
	if !provider.Valid() {
		return nil, &ConfigurationError{Provider: provider, Reason: "unsupported provider"}
	}

	pc, ok := m.cfg.Providers[provider]
	if !ok {
		return nil, &ConfigurationError{Provider: provider, Reason: "provider is not configured"}
	}
	if err := pc.validate(provider); err != nil {
		return nil, err
	}

	if len(scopes) == 0 {
		scopes = pc.Scopes
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes(provider)
	}
	scopes = pkgoauth.NormalizeScopes(scopes...)
	if len(scopes) == 0 {
		return nil, &ConfigurationError{Provider: provider, Reason: "no scopes requested"}
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	req := &AuthorizationRequest{
		Provider:    provider,
		Scopes:      scopes,
		RedirectURI: pc.RedirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.StateTTL),
		State:       state,
	}

	opts := providerAuthOptions(provider)
	for k, v := range pc.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if pc.PKCE {
		req.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(req.CodeVerifier))
	}
	req.URL = pc.oauth2Config(provider, scopes).AuthCodeURL(state, opts...)

	if err := m.states.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save authorization state: %w", err)
	}

	m.metrics.authorizationStarted(provider)
	logging.Info("OAuth", "Started authorization for %s (scopes=%v, pkce=%t)", provider, scopes, pc.PKCE)
	return req, nil
}
