package users

import (
	"fmt"

	"github.com/nutrilog/gatekeeper/cmd/helpers"
	"github.com/spf13/cobra"
)

var RevokeCmd = &cobra.Command{
	Use:           "revoke <owner-email>",
	Short:         "Revoke all of a user's credentials",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRevoke,
}

func runRevoke(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	result, err := c.RevokeUser(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("error revoking user: %w", err)
	}

	fmt.Printf("Revoked %d credential(s) for %s\n", result.RevokedRecords, result.Owner)
	fmt.Printf("Signed tokens issued before %s are no longer valid\n",
		result.InvalidBefore.Format("2006-01-02 15:04:05 MST"))
	return nil
}
