// Package mock provides test doubles for the provider connection code.
//
// BackendServer is an httptest server implementing the backend's
// /oauth/<provider>/exchange and /oauth/<provider>/refresh endpoints. It
// issues codes and refresh tokens, counts calls, and can be told to fail
// or to hold refreshes so concurrent callers pile up behind one request.
//
// MockClock is a controllable Clock for expiring tokens and pending
// authorizations without waiting.
//
// Usage:
//
//	backend := mock.NewBackendServer(mock.BackendConfig{})
//	defer backend.Close()
//
//	code := backend.IssueCode(pkgoauth.ProviderGoogle, "openid")
//	// drive a callback with code, then:
//	backend.FailRefresh(&mock.Failure{StatusCode: 401, Code: "invalid_grant"})
package mock
