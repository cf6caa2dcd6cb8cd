// Package logging provides the subsystem-tagged structured logger used across
// getgetleads.
//
// It is a thin layer over log/slog: every entry carries a "subsystem"
// attribute so output can be filtered per component, and messages use
// printf-style formatting.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("OAuth", "Connected provider %s", provider)
//	logging.Debug("TokenStore", "Loaded session for %s from %s", provider, path)
//	logging.Error("Backend", err, "Refresh for %s failed", provider)
//
// Until InitForCLI is called only Error entries are written (to stderr), so
// the packages stay quiet when embedded as a library.
//
// # Subsystems
//
//   - **OAuth**: authorization, callback handling, refresh
//   - **TokenStore**: session persistence
//   - **Backend**: calls to the token exchange backend
//   - **Callback**: local redirect target
//   - **Server**: long-running HTTP surface
//   - **Config**: configuration loading
//
// # Audit Logging
//
// Session lifecycle changes are recorded with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Event:    "session_deleted",
//	    Provider: "google",
//	    Outcome:  "success",
//	})
//
// Access tokens, refresh tokens, authorization codes and state values must
// never be passed to any function in this package.
package logging
