package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getgetleads/connect/internal/callback"
	"github.com/getgetleads/connect/internal/config"
	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/internal/testing/mock"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

type cmdTestEnv struct {
	app     *app
	backend *mock.BackendServer
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testAppConfig(backendURL, redirectURI string) config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Backend.URL = backendURL
	cfg.Storage.Backend = config.StorageMemory
	cfg.Providers = map[pkgoauth.Provider]oauth.ProviderConfig{
		pkgoauth.ProviderGoogle:   {ClientID: "google-client", RedirectURI: redirectURI},
		pkgoauth.ProviderLinkedIn: {ClientID: "linkedin-client", RedirectURI: redirectURI},
	}
	return cfg
}

// newCmdTestEnv makes every command run against an in-memory app backed by
// a fake backend.
func newCmdTestEnv(t *testing.T) *cmdTestEnv {
	t.Helper()

	backend := mock.NewBackendServer(mock.BackendConfig{})
	t.Cleanup(backend.Close)

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/oauth/callback", freePort(t))
	a, err := newAppFromConfig(context.Background(), testAppConfig(backend.URL(), redirectURI))
	require.NoError(t, err)

	original := newAppFunc
	newAppFunc = func(context.Context) (*app, error) { return a, nil }
	t.Cleanup(func() { newAppFunc = original })

	return &cmdTestEnv{app: a, backend: backend}
}

// connect completes an authorization without going through a browser.
func (e *cmdTestEnv) connect(t *testing.T, provider pkgoauth.Provider) *pkgoauth.Session {
	t.Helper()
	ctx := context.Background()
	req, err := e.app.manager.BeginAuthorization(ctx, provider, nil)
	require.NoError(t, err)
	code := e.backend.IssueCode(provider, req.Scopes...)
	session, err := e.app.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
	require.NoError(t, err)
	return session
}

func resetFlags() {
	configPath = ""
	debug = false
	connectScopes = nil
	connectNoBrowser = false
	connectTimeout = callback.DefaultTimeout
	statusWatch = false
	statusInterval = DefaultStatusInterval
	statusJSON = false
	disconnectAll = false
	serveListen = ""
}

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), err
}
