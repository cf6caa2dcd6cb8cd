package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getgetleads/connect/internal/callback"
	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const (
	// DefaultCallbackPath is used when no provider names a redirect URI.
	DefaultCallbackPath = "/oauth/callback"

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// Options customises a Server.
type Options struct {
	// CallbackPath is where providers redirect back to.
	CallbackPath string

	// PostConnectURL is linked from the result page.
	PostConnectURL string

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server exposes an oauth.Manager over HTTP.
type Server struct {
	manager    *oauth.Manager
	callback   *callback.Handler
	opts       Options
	httpServer *http.Server
}

// New creates a Server for manager.
func New(manager *oauth.Manager, opts Options) *Server {
	if opts.CallbackPath == "" {
		opts.CallbackPath = DefaultCallbackPath
	}
	return &Server{
		manager:  manager,
		callback: callback.NewHandler(manager.HandleCallback, callback.HandlerOptions{ContinueURL: opts.PostConnectURL}),
		opts:     opts,
	}
}

// CreateMux returns the routing table.
func (s *Server) CreateMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /connect/{provider}", s.handleConnect)
	mux.Handle(s.opts.CallbackPath, s.callback)

	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.CreateMux(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()
	logging.Info("Server", "Listening on %s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		logging.Info("Server", "Stopped")
		return nil
	}
}

type statusResponse struct {
	Guest     bool                   `json:"guest"`
	Providers []oauth.ProviderStatus `json:"providers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, statusResponse{
		Guest:     s.manager.IsGuest(),
		Providers: s.manager.Status(r.Context()),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	provider, err := pkgoauth.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	req, err := s.manager.BeginAuthorization(r.Context(), provider, r.URL.Query()["scope"])
	var cfgErr *oauth.ConfigurationError
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrGuestMode):
		writeError(w, http.StatusForbidden, "guest sessions cannot connect providers")
		return
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusServiceUnavailable, cfgErr.Error())
		return
	default:
		logging.Error("Server", err, "Failed to begin authorization for %s", provider)
		writeError(w, http.StatusInternalServerError, "failed to begin authorization")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, req.URL, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
