// Package oauth manages third-party provider connections for GetGetLeads.
//
// It acquires, persists, validates and refreshes OAuth access tokens for
// the supported providers (Google and LinkedIn) and reports which providers
// are connected. Code exchange and refresh are performed by the GetGetLeads
// backend, which holds the client secrets; this package never talks to a
// provider's token endpoint directly.
//
// # Flow
//
//  1. BeginAuthorization creates a pending AuthorizationRequest bound to a
//     fresh single-use state and returns the provider authorization URL
//  2. The user consents on the provider site, which redirects back with
//     a code and the state
//  3. HandleCallback consumes the state, asks the backend to exchange the
//     code and stores the resulting Session
//  4. GetValidAccessToken returns a token that is valid for at least the
//     safety margin, refreshing through the backend when needed
//  5. IsConnected and GetSession are pure reads used to gate features
//
// # Components
//
//   - Manager: the entry point tying the pieces below together
//   - StateStore: pending authorization requests, single use
//   - Backend: the trusted exchange and refresh collaborator
//   - Transport: an http.RoundTripper that authenticates API calls
//   - Metrics: optional Prometheus collectors
//
// # Concurrency
//
// Concurrent GetValidAccessToken calls for the same provider share a single
// in-flight refresh. A session write is a single atomic replace in the
// token store, so readers see either the old session or the new one.
//
// # Security
//
// States are 256-bit random values stored only by their SHA-256 hash.
// Tokens, codes and states are never logged. A failure for one provider
// never touches the session of another.
package oauth
