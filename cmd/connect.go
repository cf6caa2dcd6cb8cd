package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/getgetleads/connect/internal/callback"
	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// resultPageGrace is how long the callback server stays up for the browser
// to load the result page.
const resultPageGrace = 3 * time.Second

// Connect-specific flags
var (
	connectScopes    []string
	connectNoBrowser bool
	connectTimeout   time.Duration
)

// openBrowser is replaced in tests.
var openBrowser = callback.OpenBrowser

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Connect a Google or LinkedIn account",
	Long: `Connect a provider account by completing its consent screen in the browser.

A temporary local server receives the provider's redirect on the configured
redirect URI, hands the authorization code to the GetGetLeads backend, and
stores the resulting session. Connecting a provider that is already connected
replaces its session.

Examples:
  getgetleads connect google
  getgetleads connect linkedin --no-browser
  getgetleads connect google --scope openid --scope https://www.googleapis.com/auth/calendar`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(pkgoauth.ProviderGoogle), string(pkgoauth.ProviderLinkedIn)},
	RunE:      runConnect,
}

func init() {
	connectCmd.Flags().StringSliceVar(&connectScopes, "scope", nil, "Scope to request (repeatable; defaults to the configured scopes)")
	connectCmd.Flags().BoolVar(&connectNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", callback.DefaultTimeout, "How long to wait for consent")
}

func runConnect(cmd *cobra.Command, args []string) error {
	provider, err := pkgoauth.ParseProvider(args[0])
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()
		out := cmd.OutOrStdout()

		req, err := a.manager.BeginAuthorization(ctx, provider, connectScopes)
		if err != nil {
			return err
		}

		server, err := callback.NewServer(req.RedirectURI, a.manager.HandleCallback)
		if err != nil {
			return err
		}
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer server.Stop()

		if connectNoBrowser {
			fmt.Fprintf(out, "Open this URL in your browser to connect %s:\n\n  %s\n\n", provider.Title(), req.URL)
		} else if err := openBrowser(req.URL); err != nil {
			fmt.Fprintf(out, "Could not open a browser (%v).\nOpen this URL to connect %s:\n\n  %s\n\n", err, provider.Title(), req.URL)
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = fmt.Sprintf(" Waiting for %s consent...", provider.Title())
		s.Start()
		session, err := server.WaitForCallback(ctx)
		s.Stop()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %s waiting for %s consent", connectTimeout, provider.Title())
			}
			fmt.Fprintf(out, "%s Failed to connect %s\n", text.FgRed.Sprint("✗"), provider.Title())
			server.StopAfterPage(resultPageGrace)
			return err
		}

		fmt.Fprintf(out, "%s Connected %s", text.FgGreen.Sprint("✓"), provider.Title())
		if account := session.Profile.DisplayName(); account != "" {
			fmt.Fprintf(out, " as %s", account)
		}
		fmt.Fprintln(out)
		if !session.HasRefreshToken() {
			fmt.Fprintf(out, "  %s\n", text.FgYellow.Sprint("No refresh token was issued; you will need to reconnect when the access token expires."))
		}
		server.StopAfterPage(resultPageGrace)
		return nil
	})
}
