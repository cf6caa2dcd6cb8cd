package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// callbackParams are the query parameters an authorization redirect may add
// to the redirect URI. Google also appends authuser, prompt and hd.
var callbackParams = []string{
	"code",
	"state",
	"error",
	"error_description",
	"error_uri",
	"scope",
	"authuser",
	"prompt",
	"hd",
}

// HandleCallback completes an authorization from the redirect's query
// parameters. It does not modify query; callers remove the authorization
// artifacts from the visible URL afterwards with CleanCallbackURL.
//
// The state is consumed before the code is exchanged, so replaying a
// callback always fails with ErrInvalidState.
func (m *Manager) HandleCallback(ctx context.Context, query url.Values) (*pkgoauth.Session, error) {
	state := query.Get("state")

	if code := query.Get("error"); code != "" {
		denied := &ProviderDeniedError{Code: code, Description: query.Get("error_description")}
		if state != "" {
			if req, err := m.states.Consume(ctx, state); err == nil {
				denied.Provider = req.Provider
			}
		}
		m.metrics.callback(denied.Provider, resultDenied)
		logging.Info("OAuth", "Provider %s denied authorization: %s", denied.Provider, code)
		return nil, denied
	}

	if state == "" {
		m.metrics.callback("", resultInvalid)
		return nil, ErrInvalidState
	}

	req, err := m.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			m.metrics.callback("", resultInvalid)
			logging.Warn("OAuth", "Rejected callback with unknown or reused state")
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to look up authorization state: %w", err)
	}

	now := m.clock.Now()
	if req.Expired(now) {
		m.metrics.callback(req.Provider, resultInvalid)
		logging.Warn("OAuth", "Rejected callback for %s with expired state (age=%v)", req.Provider, now.Sub(req.CreatedAt))
		return nil, ErrInvalidState
	}

	code := query.Get("code")
	if code == "" {
		m.metrics.callback(req.Provider, resultFailed)
		return nil, &ExchangeFailedError{Provider: req.Provider, Cause: errors.New("callback has no authorization code")}
	}

	resp, err := m.backend.Exchange(ctx, req.Provider, ExchangeRequest{
		Code:         code,
		State:        state,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		m.metrics.callback(req.Provider, resultFailed)
		logging.Error("OAuth", err, "Code exchange for %s failed", req.Provider)
		return nil, &ExchangeFailedError{Provider: req.Provider, Cause: err}
	}

	// The exchange may have taken a while; expiry counts from its answer.
	session := newSession(req, resp, m.clock.Now())
	if err := m.store.Put(ctx, session); err != nil {
		m.metrics.callback(req.Provider, resultFailed)
		return nil, fmt.Errorf("failed to store session for %s: %w", req.Provider, err)
	}

	m.metrics.callback(req.Provider, resultSuccess)
	logging.Audit(logging.AuditEvent{Event: "session_stored", Provider: string(req.Provider), Outcome: "success", Detail: "connect"})
	logging.Info("OAuth", "Connected %s as %s", req.Provider, session.Profile.DisplayName())
	return session.Clone(), nil
}

// newSession builds a session from an exchange response. Granted scopes
// fall back to the requested ones when the response omits them.
func newSession(req *AuthorizationRequest, resp *TokenResponse, now time.Time) *pkgoauth.Session {
	session := &pkgoauth.Session{
		Provider:     req.Provider,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scopes:       []string(resp.Scope),
		ConnectedAt:  now,
		UpdatedAt:    now,
	}
	if session.TokenType == "" {
		session.TokenType = "Bearer"
	}
	if len(session.Scopes) == 0 {
		session.Scopes = append([]string(nil), req.Scopes...)
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.Profile != nil {
		session.Profile = *resp.Profile
	}
	return session
}

// CleanCallbackURL returns a copy of u without the authorization response
// parameters. Applying it twice gives the same result.
func CleanCallbackURL(u *url.URL) *url.URL {
	clean := *u
	if u.User != nil {
		user := *u.User
		clean.User = &user
	}
	query := clean.Query()
	for _, param := range callbackParams {
		query.Del(param)
	}
	clean.RawQuery = query.Encode()
	clean.ForceQuery = false
	return &clean
}
