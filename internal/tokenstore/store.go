package tokenstore

import (
	"context"
	"errors"
	"fmt"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// ErrNotFound is returned when no session exists for a provider.
var ErrNotFound = errors.New("session not found")

// Store persists at most one session per provider.
//
// Implementations must make Put a single atomic replace of the provider's
// record so a concurrent reader observes either the old session or the new
// one, never a mix. Returned sessions are copies owned by the caller.
type Store interface {
	// Get returns the session for provider or ErrNotFound.
	Get(ctx context.Context, provider pkgoauth.Provider) (*pkgoauth.Session, error)

	// Put replaces the session for session.Provider.
	Put(ctx context.Context, session *pkgoauth.Session) error

	// Delete removes the session for provider. Deleting a missing session
	// is not an error.
	Delete(ctx context.Context, provider pkgoauth.Provider) error

	// List returns every stored session.
	List(ctx context.Context) ([]*pkgoauth.Session, error)

	// Clear removes every stored session.
	Clear(ctx context.Context) error
}

// validateProvider rejects providers that could not have come from the
// supported set. Provider names end up in file names and Redis keys.
func validateProvider(provider pkgoauth.Provider) error {
	if !provider.Valid() {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	return nil
}

func validateSession(session *pkgoauth.Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if err := validateProvider(session.Provider); err != nil {
		return err
	}
	if session.AccessToken == "" {
		return fmt.Errorf("session for %s has no access token", session.Provider)
	}
	return nil
}
