package cmd

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getgetleads/connect/internal/config"
	"github.com/getgetleads/connect/internal/poller"
	"github.com/getgetleads/connect/internal/server"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

var serveListen string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local connection server",
	Long: `Run a long-lived HTTP server that starts provider connections and receives
their redirects.

Routes:
  GET /connect/{provider}   start connecting google or linkedin
  GET /oauth/callback       provider redirect target (path from the redirect URI)
  GET /status               connection snapshot as JSON
  GET /health               liveness
  GET /metrics              Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default from config, "+config.DefaultListenAddr+")")
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		listen := serveListen
		if listen == "" {
			listen = a.cfg.Server.Listen
		}
		listener, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", listen, err)
		}

		sweeper := poller.New("state-sweep", a.cfg.Server.SweepInterval, func(context.Context) {
			if n := a.manager.SweepExpiredStates(); n > 0 {
				logging.Debug("Server", "Dropped %d expired pending authorizations", n)
			}
		})
		sweeper.Start(ctx)
		defer sweeper.Stop()

		a.watchStore(ctx, nil)

		srv := server.New(a.manager, server.Options{
			CallbackPath:   callbackPath(a.cfg),
			PostConnectURL: a.cfg.Server.PostConnectURL,
			Gatherer:       a.registry,
		})
		return srv.Serve(ctx, listener)
	})
}

// callbackPath returns the redirect path of the first configured provider.
// Every provider is expected to share it.
func callbackPath(cfg config.Config) string {
	for _, provider := range pkgoauth.SupportedProviders() {
		pc, ok := cfg.Providers[provider]
		if !ok {
			continue
		}
		if u, err := url.Parse(pc.RedirectURI); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return server.DefaultCallbackPath
}
