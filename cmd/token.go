package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token <provider>",
	Short: "Print a valid access token for a provider",
	Long: `Print an access token for the provider, refreshing it first when it
expires within the safety margin.

Exits with code 2 when the provider must be connected again.

Examples:
  curl -H "Authorization: Bearer $(getgetleads token google)" \
    https://www.googleapis.com/calendar/v3/users/me/calendarList`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(pkgoauth.ProviderGoogle), string(pkgoauth.ProviderLinkedIn)},
	RunE:      runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	provider, err := pkgoauth.ParseProvider(args[0])
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		token, err := a.manager.GetValidAccessToken(cmd.Context(), provider)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	})
}
