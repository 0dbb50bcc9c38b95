package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gupload/cli/internal/auth"
	"github.com/gupload/cli/internal/config"
	"github.com/gupload/cli/internal/logging"
)

var (
	// Global state, set up in PersistentPreRunE
	settings *viper.Viper
	cfg      *config.Config
	logger   = logging.Discard()
	fsys     = afero.NewOsFs()

	// Command line flags
	username   string
	password   string
	debug      bool
	configName string
	version    = "1.0.0" // This will be set during build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gupload",
	Short: "gupload - Garmin Connect command line client",
	Long: `gupload logs in to Garmin Connect using credentials from the command line
or from a .guploadrc file.

Credential precedence:
  1. --username and --password
  2. .guploadrc in the current directory
  3. .guploadrc in your home directory

.guploadrc format:
  [Credentials]
  username = you@example.com
  password = your-password`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(settings)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		logger = logging.New(os.Stderr, cfg.Debug)
		return nil
	},
}

// newResolver builds a credential resolver for the configured file name
func newResolver() (*auth.Resolver, auth.Locations, error) {
	locs, err := auth.DefaultLocations(cfg.ConfigName)
	if err != nil {
		return nil, auth.Locations{}, err
	}
	return auth.NewResolver(fsys, locs, logger.With(slog.String("component", "resolver"))), locs, nil
}

// printOutput prints the output in the specified format
func printOutput(data interface{}, format config.OutputFormat) error {
	switch format {
	case config.OutputJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case config.OutputYAML:
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	settings = config.NewViper()

	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Garmin Connect username")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Garmin Connect password")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (env GUPLOAD_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&configName, "config-name", auth.DefaultConfigFile, "Credentials file name looked up in the current and home directories (env GUPLOAD_CONFIG_NAME)")

	_ = settings.BindPFlag(config.KeyDebug, rootCmd.PersistentFlags().Lookup("debug"))
	_ = settings.BindPFlag(config.KeyConfigName, rootCmd.PersistentFlags().Lookup("config-name"))

	// Add version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gupload",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gupload v%s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
}
