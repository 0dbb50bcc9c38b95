package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gupload/cli/internal/auth"
	"github.com/gupload/cli/internal/config"
	"github.com/gupload/cli/internal/garmin"
)

var (
	authOutput     string
	saveStore      string
	logoutStore    string
	authSkipVerify bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Garmin Connect authentication",
	Long: `Manage Garmin Connect credentials and test logging in.

Examples:
  # Log in with credentials from .guploadrc
  gupload auth

  # Log in with explicit credentials
  gupload auth login -u you@example.com -p secret

  # Show which credentials would be used
  gupload auth status --output yaml

  # Store credentials in ~/.guploadrc
  gupload auth save -u you@example.com --store home

  # Remove stored credentials
  gupload auth logout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthLogin()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Garmin Connect",
	Long: `Resolve credentials and log in to Garmin Connect.

Failed logins are retried (3 attempts, 10 seconds apart by default; see
GUPLOAD_ATTEMPTS and GUPLOAD_RETRY_DELAY). The command fails once every
attempt has failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthLogin()
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials would be used",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := config.ValidateOutput(authOutput)
		if err != nil {
			return err
		}
		return runAuthStatus(format)
	},
}

var authSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store credentials in a .guploadrc file",
	Long: `Store credentials in .guploadrc in the home directory or the current directory.

Missing values are prompted for when running in a terminal. The credentials
are tested against Garmin Connect before being written unless --skip-verify
is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := auth.ValidateStore(saveStore)
		if err != nil {
			return err
		}
		return runAuthSave(store)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long: `Remove .guploadrc from the given store, or from both stores when --store is not set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthLogout()
	},
}

// statusReport is what auth status prints. The password is always masked.
type statusReport struct {
	Source   auth.Source `json:"source" yaml:"source"`
	Path     string      `json:"path,omitempty" yaml:"path,omitempty"`
	Username string      `json:"username" yaml:"username"`
	Password string      `json:"password" yaml:"password"`
}

func newAuthenticator(creds auth.Credentials) *auth.Authenticator {
	return auth.NewAuthenticator(creds,
		garmin.NewClient(cfg.SSOURL, cfg.ConnectURL),
		auth.WithLogger(logger),
		auth.WithAttempts(cfg.Attempts),
		auth.WithBackOff(backoff.NewConstantBackOff(cfg.RetryDelay)),
	)
}

func runAuthLogin() error {
	resolver, _, err := newResolver()
	if err != nil {
		return err
	}

	creds, err := resolver.Resolve(username, password)
	if err != nil {
		return err
	}

	authenticator := newAuthenticator(creds)
	if !authenticator.Authenticate(false) {
		return fmt.Errorf("login failed for %s after %d attempts", creds.Username, cfg.Attempts)
	}

	fmt.Printf("Logged in to Garmin Connect as %s\n", creds.Username)
	return nil
}

func runAuthStatus(format config.OutputFormat) error {
	resolver, _, err := newResolver()
	if err != nil {
		return err
	}

	creds, err := resolver.Resolve(username, password)
	if err != nil {
		return err
	}

	report := statusReport{
		Source:   creds.Source,
		Path:     creds.Path,
		Username: creds.Username,
		Password: creds.MaskedPassword(),
	}

	if format != config.OutputText {
		return printOutput(report, format)
	}

	switch creds.Source {
	case auth.SourceCLI:
		fmt.Println("Credentials from command line")
	default:
		fmt.Printf("Credentials from %s (%s)\n", creds.Path, creds.Source)
	}
	fmt.Printf("  Username: %s\n", report.Username)
	fmt.Printf("  Password: %s\n", report.Password)
	return nil
}

func runAuthSave(store auth.Store) error {
	user, pass := username, password
	if user == "" || pass == "" {
		if !isInteractive() {
			return fmt.Errorf("--username and --password are required in non-interactive mode")
		}
		var err error
		user, pass, err = promptCredentials(user, pass)
		if err != nil {
			return err
		}
	}

	_, locs, err := newResolver()
	if err != nil {
		return err
	}
	path, err := locs.Path(store)
	if err != nil {
		return err
	}

	creds := auth.Credentials{Username: user, Password: pass, Source: auth.SourceCLI}

	if !authSkipVerify {
		fmt.Println("Testing authentication...")
		if !newAuthenticator(creds).Authenticate(false) {
			return fmt.Errorf("authentication test failed for %s", user)
		}
		fmt.Println("Authentication successful")
	}

	if err := auth.SaveCredentials(fsys, path, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Printf("Credentials saved to %s\n", path)
	return nil
}

func runAuthLogout() error {
	_, locs, err := newResolver()
	if err != nil {
		return err
	}

	stores := []auth.Store{auth.StoreHome, auth.StoreProject}
	if logoutStore != "" {
		store, err := auth.ValidateStore(logoutStore)
		if err != nil {
			return err
		}
		stores = []auth.Store{store}
	}

	for _, store := range stores {
		path, err := locs.Path(store)
		if err != nil {
			return err
		}
		if err := auth.RemoveCredentials(fsys, path); err != nil {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
	}

	fmt.Println("Credentials removed successfully")
	return nil
}

func promptCredentials(user, pass string) (string, string, error) {
	if user == "" {
		fmt.Print("Garmin Connect username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read username: %w", err)
		}
		user = strings.TrimSpace(line)
		if user == "" {
			return "", "", fmt.Errorf("username cannot be empty")
		}
	}

	if pass == "" {
		fmt.Print("Garmin Connect password: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		pass = string(secret)
		if pass == "" {
			return "", "", fmt.Errorf("password cannot be empty")
		}
	}

	return user, pass, nil
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func init() {
	authStatusCmd.Flags().StringVarP(&authOutput, "output", "o", "text", "Output format: text, json, yaml")

	authSaveCmd.Flags().StringVar(&saveStore, "store", "home", "Where to save credentials: home, project")
	authSaveCmd.Flags().BoolVar(&authSkipVerify, "skip-verify", false, "Save without testing the credentials")

	authLogoutCmd.Flags().StringVar(&logoutStore, "store", "", "Store to clear: home, project (default both)")

	authCmd.AddCommand(authLoginCmd, authStatusCmd, authSaveCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
