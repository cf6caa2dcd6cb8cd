package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getgetleads/connect/internal/tokenstore"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// GetValidAccessToken returns an access token for provider that stays
// valid for at least the safety margin. A token closer to expiry is
// refreshed through the backend first.
//
// Errors:
//   - ErrNotConnected: no session exists
//   - ErrReauthRequired: the session cannot be refreshed and was removed
//   - *TransientError: the refresh failed temporarily, the session is kept
func (m *Manager) GetValidAccessToken(ctx context.Context, provider pkgoauth.Provider) (string, error) {
	if m.cfg.Guest {
		return "", notConnected(provider)
	}
	if !provider.Valid() {
		return "", &ConfigurationError{Provider: provider, Reason: "unsupported provider"}
	}

	session, err := m.store.Get(ctx, provider)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return "", notConnected(provider)
		}
		return "", fmt.Errorf("failed to read session for %s: %w", provider, err)
	}

	if !session.ExpiresWithin(m.clock.Now(), m.cfg.SafetyMargin) {
		return session.AccessToken, nil
	}
	return m.refreshShared(ctx, provider)
}

// refreshShared joins the in-flight refresh for provider or starts one.
// The refresh itself runs detached from ctx so that one caller giving up
// does not fail the others; each caller still stops waiting when its own
// ctx is done.
func (m *Manager) refreshShared(ctx context.Context, provider pkgoauth.Provider) (string, error) {
	ch := m.refreshes.DoChan(string(provider), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return m.refresh(refreshCtx, provider)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh renews the session for provider. It re-reads the store first:
// the flight may have started just after another one finished.
func (m *Manager) refresh(ctx context.Context, provider pkgoauth.Provider) (string, error) {
	session, err := m.store.Get(ctx, provider)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return "", notConnected(provider)
		}
		return "", fmt.Errorf("failed to read session for %s: %w", provider, err)
	}
	if !session.ExpiresWithin(m.clock.Now(), m.cfg.SafetyMargin) {
		return session.AccessToken, nil
	}

	if !session.HasRefreshToken() {
		logging.Info("OAuth", "Session for %s expired and has no refresh token", provider)
		m.dropSession(ctx, session, "expired_without_refresh_token")
		return "", reauthRequired(provider, nil)
	}

	logging.Debug("OAuth", "Refreshing access token for %s", provider)
	started := time.Now()
	resp, err := m.backend.Refresh(ctx, provider, session.RefreshToken)
	took := time.Since(started)

	if err != nil {
		var backendErr *BackendError
		if errors.As(err, &backendErr) && backendErr.IsAuthFailure() {
			m.metrics.refresh(provider, resultReauth, took)
			logging.Warn("OAuth", "Refresh grant for %s was rejected: %s", provider, backendErr.Code)
			m.dropSession(ctx, session, "refresh_rejected")
			return "", reauthRequired(provider, err)
		}
		m.metrics.refresh(provider, resultTransient, took)
		logging.Warn("OAuth", "Refresh for %s failed, keeping session: %v", provider, err)
		return "", &TransientError{Provider: provider, Cause: err}
	}

	updated := applyRefresh(session, resp, m.clock.Now())
	if err := m.store.Put(ctx, updated); err != nil {
		m.metrics.refresh(provider, resultTransient, took)
		return "", &TransientError{Provider: provider, Cause: fmt.Errorf("failed to store refreshed session: %w", err)}
	}

	m.metrics.refresh(provider, resultSuccess, took)
	logging.Audit(logging.AuditEvent{Event: "session_refreshed", Provider: string(provider), Outcome: "success"})
	return updated.AccessToken, nil
}

// applyRefresh returns session updated with a refresh response. The refresh
// token is kept unless the provider rotated it; profile and connection time
// never change on refresh.
func applyRefresh(session *pkgoauth.Session, resp *TokenResponse, now time.Time) *pkgoauth.Session {
	updated := session.Clone()
	updated.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		updated.RefreshToken = resp.RefreshToken
	}
	if resp.TokenType != "" {
		updated.TokenType = resp.TokenType
	}
	if len(resp.Scope) > 0 {
		updated.Scopes = []string(resp.Scope)
	}
	if resp.ExpiresIn > 0 {
		updated.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else {
		updated.ExpiresAt = time.Time{}
	}
	updated.UpdatedAt = now
	return updated
}
