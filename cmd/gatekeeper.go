package cmd

import (
	"fmt"
	"os"

	"github.com/nutrilog/gatekeeper/cmd/server"
	"github.com/nutrilog/gatekeeper/cmd/users"
	"github.com/spf13/cobra"
)

var gatekeeperCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper guards access to a personal nutrition-data API",
	Long: `Gatekeeper validates bearer credentials for the public nutrition API and
runs the privileged admin surface that issues and revokes them. The two
services share nothing but the credential store.`,
}

// Execute runs the root command.
func Execute() {
	if err := gatekeeperCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	gatekeeperCmd.AddCommand(server.ServerCmd)
	gatekeeperCmd.AddCommand(users.UsersCmd)
}
