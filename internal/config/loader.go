package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const (
	userConfigDir  = ".config/getgetleads"
	configFileName = "config.yaml"
)

// DefaultConfigPath returns ~/.config/getgetleads/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig reads the file at configPath over the defaults, applies
// environment overrides and validates the result. An empty configPath
// means DefaultConfigPath.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		configPath = path
	}

	config := GetDefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config file found at %s, using defaults", configPath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configPath, err)
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configPath)
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return config, nil
}

// envOverrides holds the GETGETLEADS_* variables. Unset variables leave the
// file value in place.
type envOverrides struct {
	BackendURL       string `env:"GETGETLEADS_BACKEND_URL"`
	BackendAPIKey    string `env:"GETGETLEADS_BACKEND_API_KEY"`
	GoogleClientID   string `env:"GETGETLEADS_GOOGLE_CLIENT_ID"`
	LinkedInClientID string `env:"GETGETLEADS_LINKEDIN_CLIENT_ID"`
	RedirectURI      string `env:"GETGETLEADS_REDIRECT_URI"`
	StorageBackend   string `env:"GETGETLEADS_STORAGE_BACKEND"`
	StorageDir       string `env:"GETGETLEADS_STORAGE_DIR"`
	RedisAddr        string `env:"GETGETLEADS_REDIS_ADDR"`
	RedisPassword    string `env:"GETGETLEADS_REDIS_PASSWORD"`
	Guest            *bool  `env:"GETGETLEADS_GUEST"`
	Listen           string `env:"GETGETLEADS_LISTEN"`
}

func applyEnv(config *Config) error {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&config.Backend.URL, raw.BackendURL)
	setString(&config.Backend.APIKey, raw.BackendAPIKey)
	setString(&config.Storage.Backend, raw.StorageBackend)
	setString(&config.Storage.Dir, raw.StorageDir)
	setString(&config.Storage.Redis.Addr, raw.RedisAddr)
	setString(&config.Storage.Redis.Password, raw.RedisPassword)
	setString(&config.Server.Listen, raw.Listen)
	if raw.Guest != nil {
		config.Session.Guest = *raw.Guest
	}

	setClientID(config, pkgoauth.ProviderGoogle, raw.GoogleClientID)
	setClientID(config, pkgoauth.ProviderLinkedIn, raw.LinkedInClientID)

	for provider, pc := range config.Providers {
		if raw.RedirectURI != "" {
			pc.RedirectURI = raw.RedirectURI
		}
		if pc.RedirectURI == "" {
			pc.RedirectURI = DefaultRedirectURI
		}
		config.Providers[provider] = pc
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setClientID(config *Config, provider pkgoauth.Provider, clientID string) {
	if clientID == "" {
		return
	}
	if config.Providers == nil {
		config.Providers = make(map[pkgoauth.Provider]oauth.ProviderConfig)
	}
	pc := config.Providers[provider]
	pc.ClientID = clientID
	config.Providers[provider] = pc
}
