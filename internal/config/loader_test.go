package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func withHome(t *testing.T, home string) {
	t.Helper()
	original := osUserHomeDir
	osUserHomeDir = func() (string, error) { return home, nil }
	t.Cleanup(func() { osUserHomeDir = original })
}

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	withHome(t, home)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBackendURL, cfg.Backend.URL)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(home, pkgoauth.DefaultSessionStorageDir), cfg.Storage.Dir)
	assert.Equal(t, "getgetleads:", cfg.Storage.Redis.Prefix)
	assert.Equal(t, DefaultListenAddr, cfg.Server.Listen)
	assert.Equal(t, DefaultSweepInterval, cfg.Server.SweepInterval)
	assert.Empty(t, cfg.Providers)
}

func TestLoadConfig_File(t *testing.T) {
	withHome(t, t.TempDir())
	path := writeConfigFile(t, `
backend:
  url: https://staging-api.getgetleads.com
  api_key: k
  timeout: 10s
providers:
  google:
    client_id: g-client
    redirect_uri: http://127.0.0.1:9000/cb
    pkce: true
  linkedin:
    client_id: l-client
    scopes: [openid, w_member_social]
session:
  safety_margin: 2m
storage:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging-api.getgetleads.com", cfg.Backend.URL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Session.SafetyMargin)

	google := cfg.Providers[pkgoauth.ProviderGoogle]
	assert.Equal(t, "g-client", google.ClientID)
	assert.Equal(t, "http://127.0.0.1:9000/cb", google.RedirectURI)
	assert.True(t, google.PKCE)

	linkedin := cfg.Providers[pkgoauth.ProviderLinkedIn]
	assert.Equal(t, DefaultRedirectURI, linkedin.RedirectURI, "missing redirect URI falls back to the default")
	assert.Equal(t, []string{"openid", "w_member_social"}, linkedin.Scopes)

	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
	assert.Equal(t, "getgetleads:", cfg.Storage.Redis.Prefix, "unset fields keep their defaults")

	oc := cfg.OAuthConfig()
	assert.Equal(t, 2*time.Minute, oc.SafetyMargin)
	assert.Len(t, oc.Providers, 2)
	bc := cfg.BackendClientConfig()
	assert.Equal(t, "k", bc.APIKey)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	withHome(t, t.TempDir())
	path := writeConfigFile(t, `
providers:
  google:
    client_id: from-file
    redirect_uri: http://127.0.0.1:9000/cb
`)

	t.Setenv("GETGETLEADS_BACKEND_URL", "http://localhost:3000")
	t.Setenv("GETGETLEADS_GOOGLE_CLIENT_ID", "from-env")
	t.Setenv("GETGETLEADS_LINKEDIN_CLIENT_ID", "linkedin-env")
	t.Setenv("GETGETLEADS_REDIRECT_URI", "http://localhost:7777/oauth/callback")
	t.Setenv("GETGETLEADS_STORAGE_BACKEND", "memory")
	t.Setenv("GETGETLEADS_GUEST", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Backend.URL)
	assert.Equal(t, "from-env", cfg.Providers[pkgoauth.ProviderGoogle].ClientID)
	assert.Equal(t, "linkedin-env", cfg.Providers[pkgoauth.ProviderLinkedIn].ClientID)
	for provider, pc := range cfg.Providers {
		assert.Equal(t, "http://localhost:7777/oauth/callback", pc.RedirectURI, provider)
	}
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.True(t, cfg.Session.Guest)
}

func TestLoadConfig_GuestFalseOverridesFile(t *testing.T) {
	withHome(t, t.TempDir())
	path := writeConfigFile(t, "session:\n  guest: true\n")
	t.Setenv("GETGETLEADS_GUEST", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Session.Guest)
}

func TestLoadConfig_Errors(t *testing.T) {
	withHome(t, t.TempDir())

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, "backend: [unterminated"))
		assert.ErrorContains(t, err, "error loading config")
	})

	t.Run("invalid env value", func(t *testing.T) {
		t.Setenv("GETGETLEADS_GUEST", "maybe")
		_, err := LoadConfig(writeConfigFile(t, ""))
		assert.ErrorContains(t, err, "parse env")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, "storage:\n  backend: s3\n"))
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "storage.backend", verrs[0].Field)
	})
}
