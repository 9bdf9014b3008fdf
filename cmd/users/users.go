package users

import (
	"github.com/spf13/cobra"
)

var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage API users and their credentials",
	Long:  `This command groups subcommands for registering, inspecting and revoking API users.`,
}

func init() {
	UsersCmd.AddCommand(RegisterCmd)
	UsersCmd.AddCommand(ListCmd)
	UsersCmd.AddCommand(ReadCmd)
	UsersCmd.AddCommand(RevokeCmd)
}
