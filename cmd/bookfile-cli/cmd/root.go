package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bookgate/pkg/auth"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var (
	// Global flags
	serverURL string
	token     string
	verbose   bool
	output    string // json, yaml, table

	// OIDC settings shared by login, logout and authenticated commands
	issuerURL    string
	clientID     string
	clientSecret string
	tokenFile    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bookfile-cli",
	Short: "Bookgate book file CLI",
	Long: `A command-line interface for the bookgate book file service.

Remote commands download and decrypt book files and report access. Local
commands slice and inspect EPUB files without a server. Authentication uses
either a bearer token (--token) or an OIDC password login (see "login").`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("BOOKGATE_SERVER_URL", "http://localhost:8080"), "Book file server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("BOOKGATE_TOKEN"), "Bearer token for authentication")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, yaml, table)")

	rootCmd.PersistentFlags().StringVar(&issuerURL, "issuer", os.Getenv("BOOKGATE_OIDC_ISSUER"), "OIDC issuer URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", getEnvOrDefault("BOOKGATE_CLIENT_ID", "bookgate-cli"), "OIDC client ID")
	rootCmd.PersistentFlags().StringVar(&clientSecret, "client-secret", os.Getenv("BOOKGATE_CLIENT_SECRET"), "OIDC client secret")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", getDefaultTokenFile(), "Token cache file")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(sliceCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(signTokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookgate-token.json"
	}
	return filepath.Join(home, ".bookgate", "token.json")
}

// tokenSource picks the credentials for remote commands: an explicit token,
// then a cached OIDC login. Nil means the request goes out anonymously.
func tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	if issuerURL == "" {
		return nil, nil
	}
	if _, err := os.Stat(tokenFile); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	ts, err := auth.NewPasswordTokenSource(ctx, auth.PasswordGrantConfig{
		IssuerURL:    issuerURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    tokenFile,
	})
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(nil, ts), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(stdout, "Bookgate book file CLI v1.0.0")
	},
}
