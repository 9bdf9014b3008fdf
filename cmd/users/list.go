package users

import (
	"fmt"

	"github.com/nutrilog/gatekeeper/cmd/helpers"
	"github.com/spf13/cobra"
)

var (
	listFilter string
	listLimit  int

	ListCmd = &cobra.Command{
		Use:           "list",
		Short:         "List registered users",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runList,
	}
)

func init() {
	ListCmd.Flags().StringVar(&listFilter, "filter", "", "Only list owners containing this substring")
	ListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of users to list")
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	users, err := c.ListUsers(cmd.Context(), listFilter, listLimit)
	if err != nil {
		return fmt.Errorf("error listing users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	headers := []string{"Owner", "Token Hash", "Status", "Issued At"}
	data := make([][]any, 0, len(users))
	for _, user := range users {
		data = append(data, []any{
			user.Owner,
			user.TokenHash,
			user.Status,
			user.IssuedAt.Format("2006-01-02 15:04:05"),
		})
	}

	helpers.PrintTable(headers, data)
	return nil
}
