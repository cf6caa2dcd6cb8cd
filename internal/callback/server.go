package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// DefaultTimeout is how long the CLI waits for the user to finish consent.
// It matches the lifetime of a pending authorization.
const DefaultTimeout = 10 * time.Minute

// Server is a temporary local HTTP server that receives one provider
// redirect, completes it, and shows the result page.
type Server struct {
	redirect *url.URL
	handler  *Handler

	server   *http.Server
	listener net.Listener

	resultCh chan *Result
	errorCh  chan error
	pageCh   chan struct{}
	pageOnce sync.Once
	stopOnce sync.Once
}

// NewServer prepares a server for redirectURI, which must be a plain-http
// loopback URL with an explicit port. Port 0 picks a free port; see
// RedirectURI.
func NewServer(redirectURI string, exchange ExchangeFunc) (*Server, error) {
	u, err := parseLoopbackURI(redirectURI)
	if err != nil {
		return nil, err
	}

	s := &Server{
		redirect: u,
		resultCh: make(chan *Result, 1),
		errorCh:  make(chan error, 1),
		pageCh:   make(chan struct{}),
	}
	s.handler = NewHandler(exchange, HandlerOptions{
		SingleUse: true,
		OnResult: func(r *Result) {
			select {
			case s.resultCh <- r:
			default:
			}
		},
		OnPage: func() {
			s.pageOnce.Do(func() { close(s.pageCh) })
		},
	})
	return s, nil
}

func parseLoopbackURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %q must use http for a local callback", raw)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("redirect URI %q must point at a loopback address", raw)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("redirect URI %q must name a port", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// Start begins listening. The server stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.redirect.Host
	if s.redirect.Hostname() == "localhost" {
		addr = net.JoinHostPort("127.0.0.1", s.redirect.Port())
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener
	if s.redirect.Port() == "0" {
		port := listener.Addr().(*net.TCPAddr).Port
		s.redirect.Host = net.JoinHostPort(s.redirect.Hostname(), fmt.Sprint(port))
	}

	mux := http.NewServeMux()
	mux.Handle(s.redirect.Path, s.handler)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Callback", "Listening for the provider redirect on %s", s.redirect.Redacted())
	return nil
}

// RedirectURI returns the URI the server answers on, with the bound port
// once started.
func (s *Server) RedirectURI() string {
	return s.redirect.String()
}

// WaitForCallback blocks until the redirect has been processed and returns
// its outcome.
func (s *Server) WaitForCallback(ctx context.Context) (*pkgoauth.Session, error) {
	select {
	case result := <-s.resultCh:
		return result.Session, result.Err
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StopAfterPage waits up to grace for the browser to load the result page,
// then stops the server.
func (s *Server) StopAfterPage(grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.pageCh:
	case <-timer.C:
	}
	s.Stop()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
