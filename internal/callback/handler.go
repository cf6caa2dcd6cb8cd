package callback

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/pkg/logging"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// ExchangeFunc completes an authorization from the redirect query.
// oauth.Manager.HandleCallback satisfies it.
type ExchangeFunc func(ctx context.Context, query url.Values) (*pkgoauth.Session, error)

// Result is the outcome of one authorization redirect.
type Result struct {
	Session *pkgoauth.Session
	Err     error
}

// HandlerOptions customises a Handler.
type HandlerOptions struct {
	// ContinueURL is linked from the result page when set.
	ContinueURL string

	// SingleUse rejects every authorization redirect after the first.
	SingleUse bool

	// OnResult is called once per processed redirect.
	OnResult func(*Result)

	// OnPage is called after a result page has been written.
	OnPage func()
}

// Handler serves the provider redirect. A request carrying authorization
// response parameters is exchanged and answered with a 303 to the same URL
// without them, so the code and state never stay in the address bar or
// history. The clean request renders the last result.
type Handler struct {
	exchange ExchangeFunc
	opts     HandlerOptions

	mu        sync.Mutex
	processed bool
	last      *Result
}

// NewHandler creates a Handler that completes authorizations with exchange.
func NewHandler(exchange ExchangeFunc, opts HandlerOptions) *Handler {
	return &Handler{exchange: exchange, opts: opts}
}

// Last returns the most recent result, or nil before the first redirect.
func (h *Handler) Last() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if isAuthorizationResponse(r) {
		h.processRedirect(w, r)
		return
	}
	h.renderLast(w)
}

func (h *Handler) processRedirect(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.opts.SingleUse && h.processed {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.processed = true
	h.mu.Unlock()

	// The exchange must finish even if the browser goes away mid-request;
	// the state has already been spent.
	session, err := h.exchange(context.WithoutCancel(r.Context()), r.URL.Query())
	result := &Result{Session: session, Err: err}
	if err != nil {
		logging.Warn("Callback", "Authorization did not complete: %v", err)
	}

	h.mu.Lock()
	h.last = result
	h.mu.Unlock()
	if h.opts.OnResult != nil {
		h.opts.OnResult(result)
	}

	http.Redirect(w, r, oauth.CleanCallbackURL(r.URL).String(), http.StatusSeeOther)
}

func (h *Handler) renderLast(w http.ResponseWriter) {
	result := h.Last()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var err error
	switch {
	case result == nil:
		w.WriteHeader(http.StatusNotFound)
		err = errorTmpl.Execute(w, errorPage{
			Title:       "No connection in progress",
			Detail:      "Start connecting an account from GetGetLeads first.",
			ContinueURL: h.opts.ContinueURL,
		})
	case result.Err != nil:
		title, detail := describe(result.Err)
		w.WriteHeader(http.StatusBadRequest)
		err = errorTmpl.Execute(w, errorPage{Title: title, Detail: detail, ContinueURL: h.opts.ContinueURL})
	default:
		err = successTmpl.Execute(w, successPage{
			ProviderName: result.Session.Provider.Title(),
			Account:      result.Session.Profile.DisplayName(),
			ContinueURL:  h.opts.ContinueURL,
		})
	}
	if err != nil {
		logging.Error("Callback", err, "Failed to render result page")
		return
	}
	if h.opts.OnPage != nil {
		h.opts.OnPage()
	}
}

type successPage struct {
	ProviderName string
	Account      string
	ContinueURL  string
}

type errorPage struct {
	Title       string
	Detail      string
	ContinueURL string
}

// describe maps a callback error to user-facing text. Backend causes are
// not shown.
func describe(err error) (title, detail string) {
	var denied *oauth.ProviderDeniedError
	var failed *oauth.ExchangeFailedError
	switch {
	case errors.As(err, &denied):
		title = "Connection cancelled"
		if denied.Provider != "" {
			title = denied.Provider.Title() + " connection cancelled"
		}
		detail = denied.Code
		if denied.Description != "" {
			detail = denied.Description
		}
		return title, detail
	case errors.Is(err, oauth.ErrInvalidState):
		return "This sign-in link is no longer valid",
			"It has expired or was already used. Start connecting again from GetGetLeads."
	case errors.As(err, &failed):
		return "Could not finish connecting " + failed.Provider.Title(),
			"The account could not be linked. Please try again in a moment."
	default:
		return "Something went wrong", "The account could not be linked. Please try again."
	}
}

// isAuthorizationResponse reports whether the request carries a provider's
// authorization response.
func isAuthorizationResponse(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("code") || q.Has("state") || q.Has("error")
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}
