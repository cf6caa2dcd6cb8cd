// Package server provides the long-running HTTP surface used by
// `getgetleads serve`.
//
// It is the redirect target registered with the providers when the
// dashboard runs against a local agent instead of the CLI flow:
//
//	GET /connect/{provider}   begins an authorization and redirects to the provider
//	GET <callback path>       completes it (see package callback)
//	GET /status               JSON connection snapshot, never tokens
//	GET /health               liveness
//	GET /metrics              Prometheus exposition
//
// All routes operate on the single user served by the oauth.Manager.
package server
