package clicmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pgconsole/gateway/internal/cliapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			fmt.Print("Email: ")
			reader := bufio.NewReader(os.Stdin)
			input, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(input)
		}

		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		baseURL := baseURLFlag
		if baseURL == "" {
			baseURL = viper.GetString("base_url")
		}

		anonClient := cliapi.NewClient(baseURL, "")
		token, err := anonClient.Signin(email, string(passwordBytes))
		if err != nil {
			return err
		}

		viper.Set("session_token", token)
		viper.Set("base_url", baseURL)

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		configPath := home + "/.pgconsolectl.yaml"
		if err := viper.WriteConfigAs(configPath); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println("Signed in. Config saved to", configPath)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		configPath := home + "/.pgconsolectl.yaml"
		if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove config: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("session_token")
		if token == "" {
			token = os.Getenv("PGCONSOLE_SESSION_TOKEN")
		}
		if token == "" {
			fmt.Println("Not authenticated. Run 'pgconsolectl auth login'.")
			return
		}
		fmt.Println("Authenticated against", viper.GetString("base_url"))
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
}
