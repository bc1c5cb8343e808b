// Package cli implements the naslock command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miracle2k/naslock/internal/config"
)

var (
	// rootFlags
	configPath string
	verbose    bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "naslock",
	Short: "Unlock encrypted TrueNAS datasets with secrets from KeePass",
	Long: `naslock — unlock encrypted TrueNAS datasets without typing secrets.

It reads the NAS credentials and the dataset passphrase/key from a KeePass
database and calls the TrueNAS API for you:

  naslock unlock tank-media       Unlock the configured volume
  naslock keyring set             Store the KeePass password in the OS keyring`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code per error category.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err.Error())
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: "+config.DefaultPath()+", env: "+config.EnvConfig+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		unlockCmd,
		keyringCmd,
	)
}

// loadConfig reads and validates the config (flag, env, or default path).
func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &configError{err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

func printSuccess(msg string) {
	fmt.Printf("  \033[32m✔\033[0m %s\n", msg)
}

func printInfo(msg string) {
	fmt.Printf("  \033[36m→\033[0m %s\n", msg)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "  \033[31m✗\033[0m %s\n", msg)
}
