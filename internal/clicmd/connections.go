package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type connectionView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Database    string   `json:"database"`
	Permissions []string `json:"permissions"`
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List connections visible to the signed-in principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		var connections []connectionView
		if err := client.Request("GET", "/v1/connections", nil, &connections); err != nil {
			return err
		}
		for _, c := range connections {
			fmt.Printf("%-20s %-20s %-20s %v\n", c.ID, c.Name, c.Database, c.Permissions)
		}
		return nil
	},
}
