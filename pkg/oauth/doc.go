// Package oauth holds the provider-neutral value types shared by the session
// manager, the token stores and the CLI.
//
// A Session is the durable record of one provider connection. At most one
// Session exists per Provider. Its Profile is a cached copy of the account
// details for display and carries no authority.
//
// The package also contains pure helpers for interpreting provider API
// responses: ParseWWWAuthenticate and DetectInsufficientScope. They never
// perform I/O.
package oauth
