package oauth

import (
	"net/http"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// Transport is an http.RoundTripper that authenticates requests to a
// provider API with a valid access token from the Manager.
//
// Responses are checked with CheckResponse: an insufficient-scope or
// rejected-token response is closed and returned as an error instead.
type Transport struct {
	manager  *Manager
	provider pkgoauth.Provider
	base     http.RoundTripper
}

// Transport returns a RoundTripper for provider over base. A nil base uses
// http.DefaultTransport.
func (m *Manager) Transport(provider pkgoauth.Provider, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{manager: m, provider: provider, base: base}
}

// HTTPClient returns a client whose requests are authenticated for provider.
func (m *Manager) HTTPClient(provider pkgoauth.Provider) *http.Client {
	return &http.Client{Transport: m.Transport(provider, nil)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := t.manager.GetValidAccessToken(ctx, t.provider)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	authReq := req.Clone(ctx)
	authReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base.RoundTrip(authReq)
	if err != nil {
		return nil, err
	}

	if err := t.manager.CheckResponse(ctx, t.provider, resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
