package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type auditRecordView struct {
	Timestamp    string `json:"timestamp"`
	Kind         string `json:"kind"`
	Email        string `json:"email"`
	ConnectionID string `json:"connection_id,omitempty"`
	Success      bool   `json:"success"`
}

type auditPageView struct {
	Records []auditRecordView `json:"Records"`
	Total   int               `json:"Total"`
	HasMore bool              `json:"HasMore"`
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		var page auditPageView
		if err := client.Request("GET", "/v1/audit", nil, &page); err != nil {
			return err
		}
		for _, rec := range page.Records {
			fmt.Printf("%-25s %-8s %-25s %-20s success=%v\n", rec.Timestamp, rec.Kind, rec.Email, rec.ConnectionID, rec.Success)
		}
		fmt.Printf("(%d of %d, more=%v)\n", len(page.Records), page.Total, page.HasMore)
		return nil
	},
}
