package oauth

import (
	"context"
	"time"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// ProviderStatus is a display snapshot of one provider's connection. It
// never carries tokens.
type ProviderStatus struct {
	Provider    pkgoauth.Provider `json:"provider"`
	Configured  bool              `json:"configured"`
	Connected   bool              `json:"connected"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Refreshable bool              `json:"refreshable"`
	Scopes      []string          `json:"scopes,omitempty"`
	Account     string            `json:"account,omitempty"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
}

// Status reports every supported provider in display order. Like
// IsConnected it only reads the store.
func (m *Manager) Status(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(pkgoauth.SupportedProviders()))
	for _, provider := range pkgoauth.SupportedProviders() {
		_, configured := m.cfg.Providers[provider]
		status := ProviderStatus{Provider: provider, Configured: configured}

		if session, ok := m.GetSession(ctx, provider); ok {
			status.Connected = true
			status.Refreshable = session.HasRefreshToken()
			status.Scopes = session.Scopes
			status.Account = session.Profile.DisplayName()
			if !session.ExpiresAt.IsZero() {
				expires := session.ExpiresAt
				status.ExpiresAt = &expires
			}
			if !session.ConnectedAt.IsZero() {
				connected := session.ConnectedAt
				status.ConnectedAt = &connected
			}
		}
		out = append(out, status)
	}
	return out
}
