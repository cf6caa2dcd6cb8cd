package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// DefaultBackendTimeout bounds a single backend call.
const DefaultBackendTimeout = 30 * time.Second

// maxBackendResponseSize caps how much of a backend response is read.
const maxBackendResponseSize = 1 << 20

// Backend is the trusted collaborator that holds the client secrets and
// talks to the providers' token endpoints.
type Backend interface {
	// Exchange turns an authorization code into tokens.
	Exchange(ctx context.Context, provider pkgoauth.Provider, req ExchangeRequest) (*TokenResponse, error)

	// Refresh obtains a new access token from a refresh token.
	Refresh(ctx context.Context, provider pkgoauth.Provider, refreshToken string) (*TokenResponse, error)
}

// ExchangeRequest is the body of POST /oauth/<provider>/exchange.
type ExchangeRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is what the backend returns for both exchange and refresh.
type TokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	TokenType    string            `json:"token_type,omitempty"`
	ExpiresIn    int64             `json:"expires_in,omitempty"`
	Scope        ScopeList         `json:"scope,omitempty"`
	Profile      *pkgoauth.Profile `json:"profile,omitempty"`
}

// ScopeList decodes a granted scope field given either as a space-delimited
// string (Google) or as an array (some LinkedIn responses).
type ScopeList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *ScopeList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = pkgoauth.NormalizeScopes(str)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scope must be a string or an array of strings: %w", err)
	}
	*s = pkgoauth.NormalizeScopes(list...)
	return nil
}

// BackendError is a non-2xx answer from the backend.
type BackendError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	return msg
}

// IsAuthFailure reports whether the provider rejected the grant itself, as
// opposed to a failure that may go away on retry.
func (e *BackendError) IsAuthFailure() bool {
	if e.StatusCode == http.StatusUnauthorized {
		return true
	}
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	switch e.Code {
	case "invalid_grant", "invalid_token", "unauthorized_client":
		return true
	}
	return false
}

// HTTPBackendConfig configures HTTPBackend.
type HTTPBackendConfig struct {
	// BaseURL is the backend root, e.g. https://api.getgetleads.com.
	BaseURL string

	// APIKey, when set, is sent in APIKeyHeader on every call.
	APIKey string

	// APIKeyHeader defaults to X-API-Key.
	APIKeyHeader string

	// Timeout defaults to DefaultBackendTimeout. Ignored when HTTPClient
	// is set.
	Timeout time.Duration

	// HTTPClient overrides the client used for backend calls.
	HTTPClient *http.Client
}

// HTTPBackend calls the GetGetLeads backend over HTTPS.
type HTTPBackend struct {
	baseURL      *url.URL
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
}

// NewHTTPBackend validates cfg and returns a backend client. Plain HTTP is
// accepted only for loopback hosts.
func NewHTTPBackend(cfg HTTPBackendConfig) (*HTTPBackend, error) {
	if cfg.BaseURL == "" {
		return nil, &ConfigurationError{Reason: "backend URL is not configured"}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid backend URL: %v", err)}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{Reason: "backend URL has no host"}
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopbackHost(u.Hostname()) {
			return nil, &ConfigurationError{Reason: "backend URL must use https"}
		}
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported backend URL scheme %q", u.Scheme)}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultBackendTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return &HTTPBackend{
		baseURL:      u,
		apiKey:       cfg.APIKey,
		apiKeyHeader: header,
		httpClient:   httpClient,
	}, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Exchange implements Backend.
func (b *HTTPBackend) Exchange(ctx context.Context, provider pkgoauth.Provider, req ExchangeRequest) (*TokenResponse, error) {
	return b.post(ctx, provider, "exchange", req)
}

// Refresh implements Backend.
func (b *HTTPBackend) Refresh(ctx context.Context, provider pkgoauth.Provider, refreshToken string) (*TokenResponse, error) {
	return b.post(ctx, provider, "refresh", refreshRequest{RefreshToken: refreshToken})
}

func (b *HTTPBackend) post(ctx context.Context, provider pkgoauth.Provider, op string, body any) (*TokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	endpoint := b.baseURL.JoinPath("oauth", string(provider), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if b.apiKey != "" {
		req.Header.Set(b.apiKeyHeader, b.apiKey)
	}

	logging.Debug("OAuth", "Calling backend %s for %s (request_id=%s)", op, provider, requestID)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBackendResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		backendErr := &BackendError{StatusCode: resp.StatusCode}
		// Best effort: non-JSON error bodies leave Code empty.
		_ = json.Unmarshal(data, backendErr)
		logging.Debug("OAuth", "Backend %s for %s failed with HTTP %d (request_id=%s, error=%s)",
			op, provider, resp.StatusCode, requestID, backendErr.Code)
		return nil, backendErr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(data, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse backend %s response: %w", op, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("backend response has no access_token")
	}
	return &tokenResp, nil
}
