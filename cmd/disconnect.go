package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

var disconnectAll bool

// disconnectCmd represents the disconnect command
var disconnectCmd = &cobra.Command{
	Use:   "disconnect [provider]",
	Short: "Forget a provider connection",
	Long: `Delete the stored session for a provider, or for every provider with --all.

This only removes the local session. To revoke GetGetLeads' access entirely,
also remove it from your Google or LinkedIn account settings.

Examples:
  getgetleads disconnect linkedin
  getgetleads disconnect --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDisconnect,
}

func init() {
	disconnectCmd.Flags().BoolVar(&disconnectAll, "all", false, "Disconnect every provider")
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	if disconnectAll == (len(args) == 1) {
		return errors.New("specify either a provider or --all")
	}

	var provider pkgoauth.Provider
	if !disconnectAll {
		p, err := pkgoauth.ParseProvider(args[0])
		if err != nil {
			return err
		}
		provider = p
	}

	return withApp(cmd, func(a *app) error {
		out := cmd.OutOrStdout()
		if disconnectAll {
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Disconnected all providers\n", text.FgGreen.Sprint("✓"))
			return nil
		}

		if err := a.manager.Disconnect(cmd.Context(), provider); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Disconnected %s\n", text.FgGreen.Sprint("✓"), provider.Title())
		return nil
	})
}
