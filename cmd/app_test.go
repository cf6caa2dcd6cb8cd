package cmd

import (
	"context"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgetleads/connect/internal/config"
	"github.com/getgetleads/connect/internal/testing/mock"
	"github.com/getgetleads/connect/internal/tokenstore"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const testRedirectURI = "http://127.0.0.1:8085/oauth/callback"

func TestNewAppFromConfig_Storage(t *testing.T) {
	backend := mock.NewBackendServer(mock.BackendConfig{})
	defer backend.Close()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := testAppConfig(backend.URL(), testRedirectURI)
		a, err := newAppFromConfig(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &tokenstore.MemoryStore{}, a.store)
		assert.NotNil(t, a.manager)
	})

	t.Run("file", func(t *testing.T) {
		cfg := testAppConfig(backend.URL(), testRedirectURI)
		cfg.Storage.Backend = config.StorageFile
		cfg.Storage.Dir = t.TempDir()
		a, err := newAppFromConfig(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &tokenstore.FileStore{}, a.store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testAppConfig(backend.URL(), testRedirectURI)
		cfg.Storage.Backend = config.StorageRedis
		cfg.Storage.Redis.Addr = mr.Addr()
		cfg.Storage.Redis.Prefix = "test:"
		a, err := newAppFromConfig(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &tokenstore.RedisStore{}, a.store)

		// Pending authorizations are shared through redis too.
		req, err := a.manager.BeginAuthorization(ctx, pkgoauth.ProviderGoogle, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, mr.Keys())

		code := backend.IssueCode(pkgoauth.ProviderGoogle, req.Scopes...)
		_, err = a.manager.HandleCallback(ctx, url.Values{"code": {code}, "state": {req.State}})
		require.NoError(t, err)
		assert.True(t, a.manager.IsConnected(ctx, pkgoauth.ProviderGoogle))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		cfg := testAppConfig(backend.URL(), testRedirectURI)
		cfg.Storage.Backend = config.StorageRedis
		cfg.Storage.Redis.Addr = addr
		_, err = newAppFromConfig(ctx, cfg)
		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}

func TestNewApp_LoadsConfigFile(t *testing.T) {
	original := configPath
	defer func() { configPath = original }()
	configPath = t.TempDir() + "/missing.yaml"
	t.Setenv("GETGETLEADS_STORAGE_BACKEND", "memory")

	a, err := newApp(context.Background())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, config.StorageMemory, a.cfg.Storage.Backend)
}

func TestCallbackPath(t *testing.T) {
	cfg := testAppConfig("https://api.example.com", "http://127.0.0.1:9000/custom/callback")
	assert.Equal(t, "/custom/callback", callbackPath(cfg))

	cfg.Providers = nil
	assert.Equal(t, "/oauth/callback", callbackPath(cfg))
}
