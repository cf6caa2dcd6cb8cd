package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/getgetleads/connect/internal/oauth"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the configuration for errors that would only surface
// later as failed connections.
func (c Config) Validate() error {
	var errs ValidationErrors

	validateAbsoluteURL(&errs, "backend.url", c.Backend.URL)
	validateDuration(&errs, "backend.timeout", c.Backend.Timeout)

	for provider, pc := range c.Providers {
		field := "providers." + string(provider)
		if !provider.Valid() {
			errs.Add(field, "is not a supported provider", provider)
			continue
		}
		if strings.TrimSpace(pc.ClientID) == "" {
			errs.Add(field+".client_id", "is required")
		}
		validateAbsoluteURL(&errs, field+".redirect_uri", pc.RedirectURI)
		if pc.AuthURL != "" {
			validateAbsoluteURL(&errs, field+".auth_url", pc.AuthURL)
		}
		for _, key := range slices.Sorted(maps.Keys(pc.AuthParams)) {
			if oauth.IsReservedAuthParam(key) {
				errs.Add(field+".auth_params."+key, "is set by the authorization flow and cannot be overridden")
			}
		}
	}

	validateDuration(&errs, "session.safety_margin", c.Session.SafetyMargin)
	validateDuration(&errs, "session.state_ttl", c.Session.StateTTL)
	validateDuration(&errs, "session.refresh_timeout", c.Session.RefreshTimeout)

	allowed := []string{StorageFile, StorageMemory, StorageRedis}
	if !slices.Contains(allowed, c.Storage.Backend) {
		errs.Add("storage.backend", fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), c.Storage.Backend)
	}
	if c.Storage.Backend == StorageFile && strings.TrimSpace(c.Storage.Dir) == "" {
		errs.Add("storage.dir", "is required for the file backend")
	}
	if c.Storage.Backend == StorageRedis && strings.TrimSpace(c.Storage.Redis.Addr) == "" {
		errs.Add("storage.redis.addr", "is required for the redis backend")
	}
	if c.Storage.Redis.DB < 0 {
		errs.Add("storage.redis.db", "must not be negative", c.Storage.Redis.DB)
	}

	if c.Server.PostConnectURL != "" {
		validateAbsoluteURL(&errs, "server.post_connect_url", c.Server.PostConnectURL)
	}
	validatePositiveDuration(&errs, "server.sweep_interval", c.Server.SweepInterval)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateAbsoluteURL(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "is required")
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(field, "must be an absolute URL", value)
	}
}

// validateDuration accepts zero, which selects the built-in default.
func validateDuration(errs *ValidationErrors, field string, d time.Duration) {
	if d < 0 {
		errs.Add(field, "must not be negative", d)
	}
}

func validatePositiveDuration(errs *ValidationErrors, field string, d time.Duration) {
	if d <= 0 {
		errs.Add(field, "must be positive", d)
	}
}
