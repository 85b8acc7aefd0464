package clicmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type columnView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type frameView struct {
	Kind         string       `json:"kind"`
	QueryID      string       `json:"query_id,omitempty"`
	BackendPID   uint32       `json:"backend_pid,omitempty"`
	Columns      []columnView `json:"columns,omitempty"`
	Row          []string     `json:"row,omitempty"`
	RowsAffected int64        `json:"rows_affected,omitempty"`
	Message      string       `json:"message,omitempty"`
}

var querySearchPath string

var queryCmd = &cobra.Command{
	Use:   "query <connection-id> <sql>",
	Short: "Run a SQL statement against a connection and print the result frames",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		connectionID := args[0]
		sql := strings.Join(args[1:], " ")
		queryID := uuid.NewString()

		var result struct {
			Frames []frameView `json:"frames"`
		}
		body := map[string]string{"sql": sql, "query_id": queryID, "search_path": querySearchPath}
		if err := client.Request("POST", "/v1/connections/"+connectionID+"/query", body, &result); err != nil {
			return err
		}

		for _, f := range result.Frames {
			switch f.Kind {
			case "pid":
				fmt.Println("query id:", f.QueryID, "backend pid:", f.BackendPID)
			case "row":
				names := make([]string, len(f.Columns))
				for i, c := range f.Columns {
					names[i] = c.Name
				}
				fmt.Println(names, f.Row)
			case "complete":
				fmt.Println("rows affected:", f.RowsAffected)
			case "error":
				fmt.Println("error:", f.Message)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&querySearchPath, "search-path", "", "comma-separated schema search path to set before running the statement")
}
