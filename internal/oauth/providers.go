package oauth

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// Clock supplies the current time. Tests substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ProviderConfig is the public client registration for one provider.
type ProviderConfig struct {
	// ClientID is the public OAuth client identifier.
	ClientID string `yaml:"client_id"`

	// RedirectURI must match the value registered with the provider
	// exactly, including scheme, host, port and path.
	RedirectURI string `yaml:"redirect_uri"`

	// AuthURL overrides the provider's authorization endpoint.
	AuthURL string `yaml:"auth_url,omitempty"`

	// Scopes are requested when the caller does not name any.
	Scopes []string `yaml:"scopes,omitempty"`

	// PKCE adds an S256 code challenge to the authorization request. The
	// backend must then supply the verifier when exchanging the code.
	PKCE bool `yaml:"pkce,omitempty"`

	// AuthParams are extra query parameters for the authorization URL.
	// Keys set by the flow itself are rejected; see IsReservedAuthParam.
	AuthParams map[string]string `yaml:"auth_params,omitempty"`
}

// reservedAuthParams are the authorization URL parameters owned by the flow.
var reservedAuthParams = []string{
	"client_id",
	"client_secret",
	"code_challenge",
	"code_challenge_method",
	"redirect_uri",
	"response_type",
	"scope",
	"state",
}

// IsReservedAuthParam reports whether key is an authorization URL parameter
// that configuration must not override.
func IsReservedAuthParam(key string) bool {
	return slices.Contains(reservedAuthParams, strings.ToLower(strings.TrimSpace(key)))
}

// DefaultScopes returns the scopes requested by default for a provider.
func DefaultScopes(provider pkgoauth.Provider) []string {
	switch provider {
	case pkgoauth.ProviderGoogle:
		return []string{
			"openid",
			"email",
			"profile",
			"https://www.googleapis.com/auth/calendar.readonly",
		}
	case pkgoauth.ProviderLinkedIn:
		return []string{"openid", "profile", "email", "w_member_social"}
	default:
		return nil
	}
}

func defaultEndpoint(provider pkgoauth.Provider) oauth2.Endpoint {
	switch provider {
	case pkgoauth.ProviderGoogle:
		return endpoints.Google
	case pkgoauth.ProviderLinkedIn:
		return endpoints.LinkedIn
	default:
		return oauth2.Endpoint{}
	}
}

// providerAuthOptions returns the provider-specific authorization
// parameters. Google only issues a refresh token for offline access with
// explicit consent.
func providerAuthOptions(provider pkgoauth.Provider) []oauth2.AuthCodeOption {
	switch provider {
	case pkgoauth.ProviderGoogle:
		return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	default:
		return nil
	}
}

// oauth2Config builds the x/oauth2 configuration used to render the
// authorization URL. No client secret is ever set.
func (pc ProviderConfig) oauth2Config(provider pkgoauth.Provider, scopes []string) *oauth2.Config {
	endpoint := defaultEndpoint(provider)
	if pc.AuthURL != "" {
		endpoint.AuthURL = pc.AuthURL
	}
	return &oauth2.Config{
		ClientID:    pc.ClientID,
		Endpoint:    endpoint,
		RedirectURL: pc.RedirectURI,
		Scopes:      scopes,
	}
}

func (pc ProviderConfig) validate(provider pkgoauth.Provider) error {
	if pc.ClientID == "" {
		return &ConfigurationError{Provider: provider, Reason: "client_id is not configured"}
	}
	if pc.RedirectURI == "" {
		return &ConfigurationError{Provider: provider, Reason: "redirect_uri is not configured"}
	}
	if pc.AuthURL == "" && defaultEndpoint(provider).AuthURL == "" {
		return &ConfigurationError{Provider: provider, Reason: "no authorization endpoint"}
	}
	var reserved []string
	for key := range pc.AuthParams {
		if IsReservedAuthParam(key) {
			reserved = append(reserved, key)
		}
	}
	if len(reserved) > 0 {
		sort.Strings(reserved)
		return &ConfigurationError{Provider: provider, Reason: fmt.Sprintf("auth_params must not set %s", strings.Join(reserved, ", "))}
	}
	return nil
}
