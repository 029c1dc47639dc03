// Package cli implements the securebox command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/securebox/securebox/internal/config"
)

var (
	cfgFile   string
	storePath string
	verbose   bool
	cfg       *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "securebox",
	Short: "An envelope-encrypted secret store",
	Long: `Securebox stores secrets under a per-user key hierarchy: every value is
encrypted with its own key, object keys are wrapped under the user's
master key, and the master key only exists unwrapped inside a login
session. Secrets live either in the session (transient) or in the
database (permanent), selected per operation by a storage tier policy.

Losing the password loses the secrets: there is no recovery path, the
key hierarchy is reset instead.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if storePath != "" {
			cfg.StorePath = storePath
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zerolog.SetGlobalLevel(parsed)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/securebox/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "secret store database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add all subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetKeysCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
