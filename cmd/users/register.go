package users

import (
	"fmt"

	"github.com/nutrilog/gatekeeper/cmd/helpers"
	"github.com/spf13/cobra"
)

var (
	registerToken     string
	registerShowToken bool

	RegisterCmd = &cobra.Command{
		Use:           "register <owner-email>",
		Short:         "Register a user and issue a credential",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRegister,
	}
)

func init() {
	RegisterCmd.Flags().StringVar(&registerToken, "token", "", "Use this token instead of generating one")
	RegisterCmd.Flags().BoolVar(&registerShowToken, "show-token", false, "Print the raw token")
}

func runRegister(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	user, err := c.RegisterUser(cmd.Context(), args[0], registerToken, registerShowToken)
	if err != nil {
		return fmt.Errorf("error registering user: %w", err)
	}

	fmt.Printf("Registered %s\n", user.Owner)
	if registerShowToken {
		fmt.Printf("Token: %s\n", user.Token)
	} else {
		fmt.Printf("Token hash: %s (use --show-token to print the token once)\n", user.TokenHash)
	}
	return nil
}
