package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/internal/poller"
)

// DefaultStatusInterval is how often `status --watch` redraws.
const DefaultStatusInterval = 30 * time.Second

// Status-specific flags
var (
	statusWatch    bool
	statusInterval time.Duration
	statusJSON     bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which providers are connected",
	Long: `Show the connection state of every supported provider.

A provider counts as connected when its session is unexpired or can be
refreshed. This command only reads stored sessions; it never refreshes
tokens or contacts the providers.

Examples:
  getgetleads status
  getgetleads status --json
  getgetleads status --watch --interval 10s`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Keep running and redraw periodically")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", DefaultStatusInterval, "Redraw interval for --watch")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON instead of a table")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusWatch && statusInterval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", statusInterval)
	}
	return withApp(cmd, func(a *app) error {
		out := cmd.OutOrStdout()

		var mu sync.Mutex
		render := func(ctx context.Context) {
			mu.Lock()
			defer mu.Unlock()
			statuses := a.manager.Status(ctx)
			if statusJSON {
				_ = writeStatusJSON(out, a.manager.IsGuest(), statuses)
				return
			}
			renderStatusTable(out, a.manager.IsGuest(), statuses, time.Now())
		}

		if !statusWatch {
			render(cmd.Context())
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := poller.New("status", statusInterval, render)
		a.watchStore(ctx, func() { render(ctx) })
		p.Start(ctx)
		defer p.Stop()

		<-ctx.Done()
		return nil
	})
}

func writeStatusJSON(w io.Writer, guest bool, statuses []oauth.ProviderStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Guest     bool                   `json:"guest"`
		Providers []oauth.ProviderStatus `json:"providers"`
	}{guest, statuses})
}

func renderStatusTable(w io.Writer, guest bool, statuses []oauth.ProviderStatus, now time.Time) {
	if guest {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("Guest session: providers cannot be connected."))
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("PROVIDER"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
		text.FgHiCyan.Sprint("SCOPES"),
		text.FgHiCyan.Sprint("ACCOUNT"),
	})

	for _, status := range statuses {
		expires := ""
		if status.Connected {
			expires = formatExpiry(status.ExpiresAt, now)
		}
		t.AppendRow(table.Row{
			status.Provider.Title(),
			formatConnection(status, guest),
			expires,
			formatRefresh(status),
			formatScopes(status.Scopes),
			status.Account,
		})
	}
	t.Render()
}
