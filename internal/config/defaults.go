package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/getgetleads/connect/internal/tokenstore"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const (
	// DefaultBackendURL is the production GetGetLeads backend.
	DefaultBackendURL = "https://api.getgetleads.com"

	// DefaultRedirectURI is the local redirect target used by the CLI. It
	// must be registered with each provider.
	DefaultRedirectURI = "http://127.0.0.1:8085/oauth/callback"

	// DefaultListenAddr is where `serve` listens.
	DefaultListenAddr = "127.0.0.1:8085"

	// DefaultSweepInterval is how often `serve` drops expired pending
	// authorizations.
	DefaultSweepInterval = time.Minute
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			URL: DefaultBackendURL,
		},
		Storage: StorageConfig{
			Backend: StorageFile,
			Dir:     defaultSessionDir(),
			Redis: RedisConfig{
				Prefix: tokenstore.DefaultRedisPrefix,
			},
		},
		Server: ServerConfig{
			Listen:        DefaultListenAddr,
			SweepInterval: DefaultSweepInterval,
		},
	}
}

func defaultSessionDir() string {
	home, err := osUserHomeDir()
	if err != nil {
		logging.Warn("ConfigLoader", "Could not determine home directory, storing sessions in the working directory: %v", err)
		return filepath.Base(pkgoauth.DefaultSessionStorageDir)
	}
	return filepath.Join(home, pkgoauth.DefaultSessionStorageDir)
}

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir
