package oauth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// maxErrorBodySize caps how much of an API error body is inspected.
const maxErrorBodySize = 64 << 10

// CheckResponse classifies the response to an authenticated API call made
// with a token for provider.
//
//   - insufficient scope: returns *InsufficientScopeError and keeps the
//     session, the token is valid but lacks a permission
//   - 401: the token was rejected, removes the session and returns
//     ErrReauthRequired
//   - anything else: nil
//
// The response body stays readable for the caller.
func (m *Manager) CheckResponse(ctx context.Context, provider pkgoauth.Provider, resp *http.Response) error {
	if resp == nil {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden:
		body := peekBody(resp)
		insufficient, required := pkgoauth.DetectInsufficientScope(provider, resp.StatusCode, resp.Header, body)
		if !insufficient {
			return nil
		}
		logging.Info("OAuth", "API call for %s lacks scope (required=%q)", provider, required)
		return &InsufficientScopeError{Provider: provider, Required: required}

	case http.StatusUnauthorized:
		logging.Warn("OAuth", "API rejected the %s access token", provider)
		if session, err := m.store.Get(ctx, provider); err == nil && tokenWasUsed(resp, session) {
			m.dropSession(ctx, session, "token_rejected")
		}
		return reauthRequired(provider, nil)
	}
	return nil
}

// tokenWasUsed reports whether resp was produced by a request carrying the
// session's access token. A response without its request is assumed to be.
func tokenWasUsed(resp *http.Response, session *pkgoauth.Session) bool {
	if resp.Request == nil {
		return true
	}
	auth := resp.Request.Header.Get("Authorization")
	if auth == "" {
		return true
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return !ok || token == session.AccessToken
}

// peekBody reads the start of resp.Body and puts it back.
func peekBody(resp *http.Response) []byte {
	if resp.Body == nil {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(data), resp.Body),
		Closer: resp.Body,
	}
	return data
}

type replayBody struct {
	io.Reader
	io.Closer
}
