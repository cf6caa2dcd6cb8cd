package config

import (
	"time"

	"github.com/getgetleads/connect/internal/oauth"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// Config is the top-level configuration structure for getgetleads.
type Config struct {
	Backend   BackendConfig                              `yaml:"backend"`
	Providers map[pkgoauth.Provider]oauth.ProviderConfig `yaml:"providers,omitempty"`
	Session   SessionConfig                              `yaml:"session"`
	Storage   StorageConfig                              `yaml:"storage"`
	Server    ServerConfig                               `yaml:"server"`
}

// BackendConfig locates the GetGetLeads backend that exchanges and
// refreshes tokens.
type BackendConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key,omitempty"`
	APIKeyHeader string        `yaml:"api_key_header,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// SessionConfig tunes token lifecycle handling.
type SessionConfig struct {
	SafetyMargin   time.Duration `yaml:"safety_margin,omitempty"`
	StateTTL       time.Duration `yaml:"state_ttl,omitempty"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout,omitempty"`
	Guest          bool          `yaml:"guest,omitempty"`
}

// Storage backends.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// StorageConfig selects where sessions and pending authorizations live.
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir,omitempty"` // file backend
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// ServerConfig configures `getgetleads serve`.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"`

	// PostConnectURL is linked from the result page after a redirect.
	PostConnectURL string `yaml:"post_connect_url,omitempty"`

	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// OAuthConfig returns the oauth.Manager settings.
func (c Config) OAuthConfig() oauth.Config {
	return oauth.Config{
		Providers:      c.Providers,
		SafetyMargin:   c.Session.SafetyMargin,
		StateTTL:       c.Session.StateTTL,
		RefreshTimeout: c.Session.RefreshTimeout,
		Guest:          c.Session.Guest,
	}
}

// BackendClientConfig returns the backend client settings.
func (c Config) BackendClientConfig() oauth.HTTPBackendConfig {
	return oauth.HTTPBackendConfig{
		BaseURL:      c.Backend.URL,
		APIKey:       c.Backend.APIKey,
		APIKeyHeader: c.Backend.APIKeyHeader,
		Timeout:      c.Backend.Timeout,
	}
}
