// Package clicmd implements pgconsolectl's cobra command tree: a thin
// operator CLI over the gateway's HTTP API, grounded on the teacher's
// reference/cli gwo command structure but speaking session-cookie auth and
// PGConsole's route set instead of API keys and MCP tool calls.
package clicmd

import (
	"fmt"
	"os"

	"github.com/pgconsole/gateway/internal/cliapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	baseURLFlag  string
	sessionToken string
	client       *cliapi.Client
)

var rootCmd = &cobra.Command{
	Use:   "pgconsolectl",
	Short: "Operate a PGConsole gateway from the command line",
	Long: `pgconsolectl talks to a running PGConsole gateway: sign in, list
connections, run SQL, and tail the audit log.

Get started with:
  pgconsolectl auth login`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "login" || cmd.Name() == "logout" || cmd.Name() == "status" || cmd.Name() == "version" {
			return nil
		}

		token := sessionToken
		if token == "" {
			token = viper.GetString("session_token")
		}
		if token == "" {
			token = os.Getenv("PGCONSOLE_SESSION_TOKEN")
		}

		baseURL := baseURLFlag
		if baseURL == "" {
			baseURL = viper.GetString("base_url")
		}
		if baseURL == "" {
			baseURL = os.Getenv("PGCONSOLE_BASE_URL")
		}

		client = cliapi.NewClient(baseURL, token)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.pgconsolectl.yaml)")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "session-token", "", "session token (overrides stored/env value)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "gateway base URL")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pgconsolectl")
	}

	viper.SetEnvPrefix("PGCONSOLE")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pgconsolectl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pgconsolectl version 0.1.0")
	},
}
