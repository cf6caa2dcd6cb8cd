package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// BackendConfig configures the fake GetGetLeads backend.
type BackendConfig struct {
	// TokenLifetime is reported as expires_in. Defaults to one hour.
	TokenLifetime time.Duration

	// OmitRefreshToken makes exchanges return no refresh token, as
	// LinkedIn does for most apps.
	OmitRefreshToken bool

	// RotateRefreshTokens issues a new refresh token on every refresh and
	// revokes the old one.
	RotateRefreshTokens bool

	// ScopeAsArray returns scope as a JSON array instead of a string.
	ScopeAsArray bool

	// APIKey, when set, must be presented in X-API-Key.
	APIKey string

	// Profile is returned with every exchange. Defaults to a test user.
	Profile *pkgoauth.Profile
}

// Failure is an error answer the backend should give.
type Failure struct {
	StatusCode  int
	Code        string
	Description string
}

// ExchangeRecord is what the backend received on an exchange call.
type ExchangeRecord struct {
	Provider     string
	Code         string
	State        string
	RedirectURI  string
	CodeVerifier string
	RequestID    string
}

type codeEntry struct {
	provider string
	scope    string
}

// BackendServer is an httptest server speaking the backend exchange and
// refresh API.
type BackendServer struct {
	config BackendConfig
	server *httptest.Server

	mu            sync.Mutex
	codes         map[string]codeEntry
	refreshTokens map[string]codeEntry
	exchangeFail  *Failure
	refreshFail   *Failure
	refreshGate   chan struct{}
	lastExchange  ExchangeRecord
	issued        int

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
}

// NewBackendServer starts a fake backend. Call Close when done.
func NewBackendServer(config BackendConfig) *BackendServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	if config.Profile == nil {
		config.Profile = &pkgoauth.Profile{ID: "user-1", Name: "Test User", Email: "test@example.com"}
	}

	b := &BackendServer{
		config:        config,
		codes:         make(map[string]codeEntry),
		refreshTokens: make(map[string]codeEntry),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/{provider}/exchange", b.handleExchange)
	mux.HandleFunc("POST /oauth/{provider}/refresh", b.handleRefresh)
	b.server = httptest.NewServer(mux)
	return b
}

// URL returns the backend base URL.
func (b *BackendServer) URL() string {
	return b.server.URL
}

// Close shuts the backend down.
func (b *BackendServer) Close() {
	b.mu.Lock()
	if b.refreshGate != nil {
		close(b.refreshGate)
		b.refreshGate = nil
	}
	b.mu.Unlock()
	b.server.Close()
}

// IssueCode registers an authorization code the backend will accept once.
func (b *BackendServer) IssueCode(provider pkgoauth.Provider, scopes ...string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issued++
	code := fmt.Sprintf("code-%s-%d", provider, b.issued)
	b.codes[code] = codeEntry{provider: string(provider), scope: strings.Join(scopes, " ")}
	return code
}

// IssueRefreshToken registers a refresh token the backend will accept.
func (b *BackendServer) IssueRefreshToken(provider pkgoauth.Provider) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newRefreshTokenLocked(string(provider), "")
}

// RevokeRefreshToken makes later refreshes with token fail with
// invalid_grant.
func (b *BackendServer) RevokeRefreshToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refreshTokens, token)
}

// FailExchange makes every exchange return f until cleared with nil.
func (b *BackendServer) FailExchange(f *Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchangeFail = f
}

// FailRefresh makes every refresh return f until cleared with nil.
func (b *BackendServer) FailRefresh(f *Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFail = f
}

// HoldRefreshes blocks refresh calls until the returned release function
// is called.
func (b *BackendServer) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
				close(gate)
			}
			b.mu.Unlock()
		})
	}
}

// ExchangeCalls returns how many exchange requests were received.
func (b *BackendServer) ExchangeCalls() int {
	return int(b.exchangeCalls.Load())
}

// RefreshCalls returns how many refresh requests were received.
func (b *BackendServer) RefreshCalls() int {
	return int(b.refreshCalls.Load())
}

// LastExchange returns the most recent exchange request.
func (b *BackendServer) LastExchange() ExchangeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExchange
}

func (b *BackendServer) handleExchange(w http.ResponseWriter, r *http.Request) {
	b.exchangeCalls.Add(1)
	if !b.authorized(w, r) {
		return
	}

	var body struct {
		Code         string `json:"code"`
		State        string `json:"state"`
		RedirectURI  string `json:"redirect_uri"`
		CodeVerifier string `json:"code_verifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBackendError(w, &Failure{StatusCode: http.StatusBadRequest, Code: "invalid_request", Description: err.Error()})
		return
	}
	provider := r.PathValue("provider")

	b.mu.Lock()
	b.lastExchange = ExchangeRecord{
		Provider:     provider,
		Code:         body.Code,
		State:        body.State,
		RedirectURI:  body.RedirectURI,
		CodeVerifier: body.CodeVerifier,
		RequestID:    r.Header.Get("X-Request-ID"),
	}
	if f := b.exchangeFail; f != nil {
		b.mu.Unlock()
		writeBackendError(w, f)
		return
	}
	entry, ok := b.codes[body.Code]
	delete(b.codes, body.Code)
	if !ok || entry.provider != provider {
		b.mu.Unlock()
		writeBackendError(w, &Failure{StatusCode: http.StatusBadRequest, Code: "invalid_grant", Description: "unknown authorization code"})
		return
	}
	refreshToken := ""
	if !b.config.OmitRefreshToken {
		refreshToken = b.newRefreshTokenLocked(provider, entry.scope)
	}
	b.mu.Unlock()

	b.writeToken(w, provider, refreshToken, entry.scope, true)
}

func (b *BackendServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if !b.authorized(w, r) {
		return
	}

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBackendError(w, &Failure{StatusCode: http.StatusBadRequest, Code: "invalid_request", Description: err.Error()})
		return
	}
	provider := r.PathValue("provider")

	b.mu.Lock()
	if f := b.refreshFail; f != nil {
		b.mu.Unlock()
		writeBackendError(w, f)
		return
	}
	entry, ok := b.refreshTokens[body.RefreshToken]
	if !ok || entry.provider != provider {
		b.mu.Unlock()
		writeBackendError(w, &Failure{StatusCode: http.StatusBadRequest, Code: "invalid_grant", Description: "refresh token is invalid or revoked"})
		return
	}
	refreshToken := ""
	if b.config.RotateRefreshTokens {
		delete(b.refreshTokens, body.RefreshToken)
		refreshToken = b.newRefreshTokenLocked(provider, entry.scope)
	}
	b.mu.Unlock()

	b.writeToken(w, provider, refreshToken, entry.scope, false)
}

func (b *BackendServer) authorized(w http.ResponseWriter, r *http.Request) bool {
	if b.config.APIKey == "" || r.Header.Get("X-API-Key") == b.config.APIKey {
		return true
	}
	writeBackendError(w, &Failure{StatusCode: http.StatusForbidden, Code: "forbidden", Description: "missing or invalid API key"})
	return false
}

// newRefreshTokenLocked mints a refresh token. REQUIRES: b.mu held.
func (b *BackendServer) newRefreshTokenLocked(provider, scope string) string {
	b.issued++
	token := fmt.Sprintf("refresh-%s-%d", provider, b.issued)
	b.refreshTokens[token] = codeEntry{provider: provider, scope: scope}
	return token
}

func (b *BackendServer) writeToken(w http.ResponseWriter, provider, refreshToken, scope string, withProfile bool) {
	b.mu.Lock()
	b.issued++
	accessToken := fmt.Sprintf("access-%s-%d", provider, b.issued)
	b.mu.Unlock()

	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int64(b.config.TokenLifetime / time.Second),
	}
	if refreshToken != "" {
		resp["refresh_token"] = refreshToken
	}
	if scope != "" {
		if b.config.ScopeAsArray {
			resp["scope"] = strings.Fields(scope)
		} else {
			resp["scope"] = scope
		}
	}
	if withProfile {
		resp["profile"] = b.config.Profile
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeBackendError(w http.ResponseWriter, f *Failure) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             f.Code,
		"error_description": f.Description,
	})
}
