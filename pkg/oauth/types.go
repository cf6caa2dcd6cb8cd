package oauth

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultExpiryMargin is the margin subtracted from a session's expiry before
// its access token is considered unusable. It absorbs clock skew and the
// latency of the request the token is about to be attached to.
const DefaultExpiryMargin = 60 * time.Second

// DefaultSessionStorageDir is the default directory for persisted sessions,
// relative to the user's home directory.
const DefaultSessionStorageDir = ".config/getgetleads/sessions"

// Provider identifies the third-party system that issued a session's tokens.
type Provider string

const (
	// ProviderGoogle covers Google Calendar and Google Business Profile.
	ProviderGoogle Provider = "google"
	// ProviderLinkedIn covers LinkedIn posting.
	ProviderLinkedIn Provider = "linkedin"
)

// SupportedProviders returns every provider the manager knows how to connect,
// in display order.
func SupportedProviders() []Provider {
	return []Provider{ProviderGoogle, ProviderLinkedIn}
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return slices.Contains(SupportedProviders(), p)
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}

// Title returns the provider's brand name for display.
func (p Provider) Title() string {
	switch p {
	case ProviderGoogle:
		return "Google"
	case ProviderLinkedIn:
		return "LinkedIn"
	default:
		return string(p)
	}
}

// ParseProvider converts user input such as "Google" into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unsupported provider %q", s)
	}
	return p, nil
}

// Profile is the denormalized subset of a provider's user profile kept for
// display. It may be stale and must never drive authorization decisions.
type Profile struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName returns the best human-readable label for the account.
func (p Profile) DisplayName() string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}

// Session is the persisted connection to one provider.
type Session struct {
	// Provider issued the tokens below.
	Provider Provider `json:"provider"`

	// AccessToken is the bearer credential for API calls.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens without user interaction.
	// Some providers and flows never issue one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt is the instant the access token stops being valid.
	// A zero value means the provider did not report a lifetime.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scopes is the normalized set of granted permissions.
	Scopes []string `json:"scopes,omitempty"`

	// Profile is display-only account information.
	Profile Profile `json:"profile"`

	// ConnectedAt is when the user completed consent.
	ConnectedAt time.Time `json:"connected_at"`

	// UpdatedAt is when the record was last written (callback or refresh).
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Scopes = slices.Clone(s.Scopes)
	return &c
}

// HasRefreshToken reports whether the session can be refreshed silently.
func (s *Session) HasRefreshToken() bool {
	return s != nil && s.RefreshToken != ""
}

// ExpiresWithin reports whether the access token is expired at now, or will
// expire within margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt.Add(-margin))
}

// Usable reports whether the session still represents a connection at now:
// either its access token is unexpired or it can be refreshed.
func (s *Session) Usable(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.HasRefreshToken() || !s.ExpiresWithin(now, 0)
}

// HasScopes reports whether every required scope was granted.
func (s *Session) HasScopes(required ...string) bool {
	for _, scope := range required {
		if !slices.Contains(s.Scopes, scope) {
			return false
		}
	}
	return true
}

// ScopeString returns the granted scopes space-separated.
func (s *Session) ScopeString() string {
	return strings.Join(s.Scopes, " ")
}

// LogValue implements slog.LogValuer and omits every credential.
func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", string(s.Provider)),
		slog.Time("expires_at", s.ExpiresAt),
		slog.Bool("has_refresh_token", s.HasRefreshToken()),
		slog.String("scope", s.ScopeString()),
	)
}

// NormalizeScopes trims, de-duplicates and sorts a scope list. Each element
// may itself contain several space- or comma-separated scopes.
func NormalizeScopes(scopes ...string) []string {
	var out []string
	for _, raw := range scopes {
		for _, scope := range strings.FieldsFunc(raw, func(r rune) bool {
			return r == ' ' || r == ','
		}) {
			if !slices.Contains(out, scope) {
				out = append(out, scope)
			}
		}
	}
	slices.Sort(out)
	return out
}
