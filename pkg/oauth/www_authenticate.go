package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// AuthChallenge represents parsed information from a WWW-Authenticate header
// returned by a provider API.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	// Realm is the protection realm.
	Realm string

	// Scope is the space-separated list of scopes the resource requires.
	Scope string

	// Error is the RFC 6750 error code (invalid_token, insufficient_scope, ...).
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// IsInsufficientScope reports whether the challenge asks for broader scopes.
func (c *AuthChallenge) IsInsufficientScope() bool {
	return c != nil && c.Error == "insufficient_scope"
}

var paramRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="https://www.googleapis.com"
//	Bearer error="insufficient_scope", scope="https://www.googleapis.com/auth/calendar"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &AuthChallenge{
		Scheme: parts[0],
	}

	if len(parts) > 1 {
		params := parseAuthParams(parts[1])
		challenge.Realm = params["realm"]
		challenge.Scope = params["scope"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
	}

	return challenge, nil
}

// parseAuthParams parses the parameter portion of a WWW-Authenticate header.
// Parameters are in the format: key1="value1", key2="value2"
func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)
	for _, match := range paramRegex.FindAllStringSubmatch(paramStr, -1) {
		if len(match) == 3 {
			params[strings.ToLower(match[1])] = match[2]
		}
	}
	return params
}

// insufficientScopeMarkers are provider error strings that mean the token is
// valid but was granted too few permissions.
var insufficientScopeMarkers = [][]byte{
	[]byte("insufficient_scope"),
	[]byte("insufficientPermissions"),
	[]byte("ACCESS_TOKEN_SCOPE_INSUFFICIENT"),
	[]byte("insufficient authentication scopes"),
}

// linkedInScopeMessage matches the message of a LinkedIn 400 error that
// complains about missing permissions, such as "Not enough permissions to
// access: share.create" or "Request requires scope w_member_social".
var linkedInScopeMessage = regexp.MustCompile(`(?i)\bnot enough permissions\b|\b(requires?|missing|insufficient)\s+scopes?\b`)

// DetectInsufficientScope inspects an authenticated API response and reports
// whether it failed because the token lacks a permission. The returned
// string is the scope the resource asked for, when the provider says so.
//
// Only 400 and 403 responses qualify; a 401 is an invalid token, never a
// scope problem. LinkedIn also reports missing permissions as a plain 400,
// recognised by the message field of its error body.
func DetectInsufficientScope(provider Provider, status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden && status != http.StatusBadRequest {
		return false, ""
	}

	if h := header.Get("WWW-Authenticate"); h != "" {
		if challenge, err := ParseWWWAuthenticate(h); err == nil && challenge.IsInsufficientScope() {
			return true, challenge.Scope
		}
	}

	for _, marker := range insufficientScopeMarkers {
		if bytes.Contains(body, marker) {
			return true, ""
		}
	}

	if provider == ProviderLinkedIn && status == http.StatusBadRequest {
		var linkedInErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &linkedInErr) == nil && linkedInScopeMessage.MatchString(linkedInErr.Message) {
			return true, ""
		}
	}

	return false, ""
}
