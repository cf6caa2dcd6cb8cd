package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/getgetleads/connect/internal/config"
	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/internal/tokenstore"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const redisPingTimeout = 5 * time.Second

// app holds the components shared by every command.
type app struct {
	cfg      config.Config
	store    tokenstore.Store
	manager  *oauth.Manager
	registry *prometheus.Registry
	closers  []func() error
}

// newAppFunc is replaced in tests.
var newAppFunc = newApp

// newApp loads the configuration and wires the session manager.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(ctx, cfg)
}

func newAppFromConfig(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []oauth.Option{oauth.WithMetrics(oauth.NewMetrics(a.registry))}

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		logging.Warn("App", "Using in-memory session storage; connections are lost when the process exits")
		a.store = tokenstore.NewMemoryStore()

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Username: cfg.Storage.Redis.Username,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.Redis.Addr, err)
		}
		a.store = tokenstore.NewRedisStore(client, cfg.Storage.Redis.Prefix)
		opts = append(opts, oauth.WithStateStore(oauth.NewRedisStateStore(client, cfg.Storage.Redis.Prefix)))

	default:
		store, err := tokenstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	backend, err := oauth.NewHTTPBackend(cfg.BackendClientConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager, err = oauth.NewManager(cfg.OAuthConfig(), a.store, backend, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// watchStore follows session changes made by other processes while ctx is
// live. onChange may be nil. Only the file store needs this.
func (a *app) watchStore(ctx context.Context, onChange func()) {
	fs, ok := a.store.(*tokenstore.FileStore)
	if !ok {
		return
	}
	go func() {
		err := fs.Watch(ctx, func(pkgoauth.Provider) {
			if onChange != nil {
				onChange()
			}
		})
		if err != nil {
			logging.Warn("App", "Session changes by other processes will not be noticed: %v", err)
		}
	}()
}

// Close releases external connections.
func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logging.Debug("App", "Close failed: %v", err)
		}
	}
	a.closers = nil
}

// withApp runs fn with a freshly wired app.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newAppFunc(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
