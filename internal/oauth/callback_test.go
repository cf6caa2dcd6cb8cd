package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgetleads/connect/internal/testing/mock"
	"github.com/getgetleads/connect/internal/tokenstore"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

func TestHandleCallback_LinkedInSuccess(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{TokenLifetime: 3600 * time.Second, OmitRefreshToken: true})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderLinkedIn, []string{"openid", "profile"})
	require.NoError(t, err)
	code := env.backend.IssueCode(pkgoauth.ProviderLinkedIn, "openid", "profile")

	session, err := env.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
	require.NoError(t, err)

	assert.Equal(t, pkgoauth.ProviderLinkedIn, session.Provider)
	assert.Equal(t, testStart.Add(3600*time.Second), session.ExpiresAt)
	assert.Empty(t, session.RefreshToken)
	assert.Equal(t, []string{"openid", "profile"}, session.Scopes)
	assert.Equal(t, "test@example.com", session.Profile.Email)
	assert.True(t, env.manager.IsConnected(ctx, pkgoauth.ProviderLinkedIn))

	exchange := env.backend.LastExchange()
	assert.Equal(t, code, exchange.Code)
	assert.Equal(t, req.State, exchange.State)
	assert.Equal(t, testRedirectURI, exchange.RedirectURI)
	assert.NotEmpty(t, exchange.RequestID)
}

func TestHandleCallback_MismatchedState(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	_, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, []string{"https://www.googleapis.com/auth/calendar.readonly"})
	require.NoError(t, err)
	code := env.backend.IssueCode(pkgoauth.ProviderGoogle)

	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {"not-the-issued-state"}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, NeedsReconnect(err))

	_, err = env.store.Get(ctx, pkgoauth.ProviderGoogle)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound, "no session may be created")
	assert.Zero(t, env.backend.ExchangeCalls(), "the code must not be exchanged")
}

func TestHandleCallback_Replay(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)
	query := url.Values{"code": {env.backend.IssueCode(pkgoauth.ProviderGoogle)}, "state": {req.State}}

	first, err := env.manager.HandleCallback(ctx, query)
	require.NoError(t, err)

	_, err = env.manager.HandleCallback(ctx, query)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, env.backend.ExchangeCalls())

	stored, err := env.store.Get(ctx, pkgoauth.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, stored.AccessToken, "replay must not write a second session")
}

func TestHandleCallback_StateConsumedOnExchangeFailure(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)

	env.backend.FailExchange(&mock.Failure{StatusCode: http.StatusBadGateway, Code: "upstream_error"})
	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {"c"}, "state": {req.State}})

	var exchangeErr *ExchangeFailedError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, pkgoauth.ProviderGoogle, exchangeErr.Provider)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusBadGateway, backendErr.StatusCode)

	env.backend.FailExchange(nil)
	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {"c"}, "state": {req.State}})
	assert.ErrorIs(t, err, ErrInvalidState, "a state is single use whatever the outcome")
}

func TestHandleCallback_ExpiredState(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)

	env.clock.Advance(DefaultStateTTL)
	code := env.backend.IssueCode(pkgoauth.ProviderGoogle)
	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, env.backend.ExchangeCalls())
}

func TestHandleCallback_ProviderDenied(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	existing := env.connect(t, pkgoauth.ProviderGoogle, "openid")

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, []string{"openid", "email"})
	require.NoError(t, err)

	_, err = env.manager.HandleCallback(ctx, url.Values{
		"error":             {"access_denied"},
		"error_description": {"The user denied access"},
		"state":             {req.State},
	})

	var denied *ProviderDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "access_denied", denied.Code)
	assert.Equal(t, "The user denied access", denied.Description)
	assert.Equal(t, pkgoauth.ProviderGoogle, denied.Provider)
	assert.True(t, NeedsReconnect(err))

	stored, err := env.store.Get(ctx, pkgoauth.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, existing.AccessToken, stored.AccessToken, "denial must not touch the existing session")

	// The state that came with the denial is spent.
	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {"c"}, "state": {req.State}})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHandleCallback_DeniedWithoutState(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})

	_, err := env.manager.HandleCallback(context.Background(), url.Values{"error": {"access_denied"}})
	var denied *ProviderDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Empty(t, denied.Provider)
}

func TestHandleCallback_MissingParameters(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	_, err := env.manager.HandleCallback(ctx, url.Values{"code": {"c"}})
	assert.ErrorIs(t, err, ErrInvalidState)

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)
	_, err = env.manager.HandleCallback(ctx, url.Values{"state": {req.State}})
	var exchangeErr *ExchangeFailedError
	assert.ErrorAs(t, err, &exchangeErr)
	assert.Zero(t, env.backend.ExchangeCalls())
}

func TestHandleCallback_ReplacesPriorSession(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	first := env.connect(t, pkgoauth.ProviderGoogle, "openid")
	env.clock.Advance(time.Minute)
	second := env.connect(t, pkgoauth.ProviderGoogle, "openid", "email")

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	stored, err := env.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, second.AccessToken, stored[0].AccessToken)
	assert.Equal(t, []string{"email", "openid"}, stored[0].Scopes)
}

func TestHandleCallback_ScopeArrayAndFallback(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{ScopeAsArray: true})
	ctx := context.Background()

	session := env.connect(t, pkgoauth.ProviderLinkedIn, "w_member_social", "openid")
	assert.Equal(t, []string{"openid", "w_member_social"}, session.Scopes)

	// The backend grants no scope field: fall back to what was requested.
	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, []string{"email"})
	require.NoError(t, err)
	code := env.backend.IssueCode(pkgoauth.ProviderGoogle)
	session, err = env.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, session.Scopes)
}

func TestHandleCallback_PKCEVerifierSentToBackend(t *testing.T) {
	cfg := testConfig()
	google := cfg.Providers[pkgoauth.ProviderGoogle]
	google.PKCE = true
	cfg.Providers[pkgoauth.ProviderGoogle] = google
	env := newTestEnvWithConfig(t, cfg, mock.BackendConfig{})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)
	code := env.backend.IssueCode(pkgoauth.ProviderGoogle)
	_, err = env.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
	require.NoError(t, err)

	assert.Equal(t, req.CodeVerifier, env.backend.LastExchange().CodeVerifier)
}

func TestHandleCallback_DoesNotMutateQuery(t *testing.T) {
	env := newTestEnv(t, mock.BackendConfig{})
	ctx := context.Background()

	req, err := env.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
	require.NoError(t, err)
	query := url.Values{"code": {env.backend.IssueCode(pkgoauth.ProviderGoogle)}, "state": {req.State}}
	before := query.Encode()

	_, err = env.manager.HandleCallback(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, before, query.Encode())
}

func TestCleanCallbackURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "success parameters",
			input:    "https://app.getgetleads.com/integrations?code=abc&state=xyz&tab=calendar",
			expected: "https://app.getgetleads.com/integrations?tab=calendar",
		},
		{
			name:     "error parameters",
			input:    "https://app.getgetleads.com/integrations?error=access_denied&error_description=no&state=xyz",
			expected: "https://app.getgetleads.com/integrations",
		},
		{
			name:     "google extras",
			input:    "http://127.0.0.1:8085/oauth/callback?state=s&code=c&scope=openid&authuser=0&prompt=consent&hd=example.com",
			expected: "http://127.0.0.1:8085/oauth/callback",
		},
		{
			name:     "nothing to remove",
			input:    "https://app.getgetleads.com/social?tab=linkedin",
			expected: "https://app.getgetleads.com/social?tab=linkedin",
		},
		{
			name:     "fragment kept",
			input:    "https://app.getgetleads.com/a?code=c#section",
			expected: "https://app.getgetleads.com/a#section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.input)
			require.NoError(t, err)

			clean := CleanCallbackURL(u)
			assert.Equal(t, tt.expected, clean.String())
			assert.Equal(t, tt.input, u.String(), "input must not be modified")
			assert.Equal(t, clean.String(), CleanCallbackURL(clean).String(), "must be idempotent")
		})
	}
}
