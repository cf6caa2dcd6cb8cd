package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const sessionFileExt = ".json"

// FileStore persists one JSON file per provider under a private directory.
//
// SECURITY: This store handles sensitive OAuth credentials.
//   - The storage directory is created with 0700 permissions
//   - Session files are written with 0600 permissions
//   - Token values are never logged, only provider names
//
// Writes go to a temporary file in the same directory which is then renamed
// over the record, so readers in this or another process never see a
// partially written session.
type FileStore struct {
	mu    sync.RWMutex
	dir   string
	cache map[pkgoauth.Provider]*pkgoauth.Session
}

// NewFileStore creates a file store rooted at dir. An empty dir selects
// ~/.config/getgetleads/sessions.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, pkgoauth.DefaultSessionStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session storage directory: %w", err)
	}

	return &FileStore{
		dir:   dir,
		cache: make(map[pkgoauth.Provider]*pkgoauth.Session),
	}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, provider pkgoauth.Provider) (*pkgoauth.Session, error) {
	if err := validateProvider(provider); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if session, ok := s.cache[provider]; ok {
		s.mu.RUnlock()
		return session.Clone(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check in case another goroutine populated it
	if session, ok := s.cache[provider]; ok {
		return session.Clone(), nil
	}

	session, err := s.readSessionFile(provider)
	if err != nil {
		return nil, err
	}
	s.cache[provider] = session
	return session.Clone(), nil
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, session *pkgoauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeSessionFile(session); err != nil {
		slog.Warn("SECURITY_AUDIT: session storage failed",
			"event", "session_store_failed",
			"provider", string(session.Provider),
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	s.cache[session.Provider] = session.Clone()

	logging.Debug("TokenStore", "Stored session for %s in %s", session.Provider, s.dir)
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, provider pkgoauth.Provider) error {
	if err := validateProvider(provider); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, provider)
	if err := os.Remove(s.sessionPath(provider)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// List implements Store. Files that are not sessions of a supported
// provider are ignored.
func (s *FileStore) List(ctx context.Context) ([]*pkgoauth.Session, error) {
	var out []*pkgoauth.Session
	for _, provider := range pkgoauth.SupportedProviders() {
		session, err := s.Get(ctx, provider)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[pkgoauth.Provider]*pkgoauth.Session)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read session directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != sessionFileExt {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove session file %s: %w", entry.Name(), err)
		}
		count++
	}

	logging.Debug("TokenStore", "Cleared %d session files from %s", count, s.dir)
	return nil
}

// Watch invalidates cached sessions when their files change on disk, for
// example when another getgetleads process completes a connection or a
// refresh. It blocks until ctx is cancelled. onChange, if non-nil, is called
// with the affected provider after the cache entry has been dropped.
func (s *FileStore) Watch(ctx context.Context, onChange func(pkgoauth.Provider)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create session watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	logging.Debug("TokenStore", "Watching %s for session changes", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			provider, ok := providerFromPath(event.Name)
			if !ok {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.invalidate(provider)
			if onChange != nil {
				onChange(provider)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("TokenStore", err, "Session watcher error")
		}
	}
}

func (s *FileStore) invalidate(provider pkgoauth.Provider) {
	s.mu.Lock()
	delete(s.cache, provider)
	s.mu.Unlock()
}

func (s *FileStore) sessionPath(provider pkgoauth.Provider) string {
	return filepath.Join(s.dir, string(provider)+sessionFileExt)
}

// providerFromPath maps "<dir>/google.json" to ProviderGoogle. Temporary
// files and unknown names are rejected.
func providerFromPath(path string) (pkgoauth.Provider, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != sessionFileExt {
		return "", false
	}
	provider := pkgoauth.Provider(strings.TrimSuffix(base, sessionFileExt))
	return provider, provider.Valid()
}

// readSessionFile reads a session file.
// REQUIRES: s.mu must be held by the caller.
func (s *FileStore) readSessionFile(provider pkgoauth.Provider) (*pkgoauth.Session, error) {
	// #nosec G304 -- path is built from a validated provider name
	data, err := os.ReadFile(s.sessionPath(provider))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session pkgoauth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Provider != provider {
		return nil, fmt.Errorf("session file for %s names provider %q", provider, session.Provider)
	}
	return &session, nil
}

// writeSessionFile atomically replaces the provider's session file.
// REQUIRES: s.mu must be held by the caller.
func (s *FileStore) writeSessionFile(session *pkgoauth.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// CreateTemp opens with 0600.
	tmp, err := os.CreateTemp(s.dir, "."+string(session.Provider)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, s.sessionPath(session.Provider)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
