package users

import (
	"fmt"

	"github.com/nutrilog/gatekeeper/cmd/helpers"
	"github.com/spf13/cobra"
)

var (
	readShowToken bool

	ReadCmd = &cobra.Command{
		Use:           "read <owner-email>",
		Short:         "Read one user's credential record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRead,
	}
)

func init() {
	ReadCmd.Flags().BoolVar(&readShowToken, "show-token", false, "Print the raw token")
}

func runRead(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	user, err := c.GetUser(cmd.Context(), args[0], readShowToken)
	if err != nil {
		return fmt.Errorf("error reading user: %w", err)
	}

	headers := []string{"Field", "Value"}
	data := [][]any{
		{"Owner", user.Owner},
		{"Token Hash", user.TokenHash},
		{"Token Length", user.TokenLength},
		{"Status", user.Status},
		{"Issued At", user.IssuedAt.Format("2006-01-02 15:04:05")},
	}
	if readShowToken {
		data = append(data, []any{"Token", user.Token})
	}

	helpers.PrintTable(headers, data)
	return nil
}
