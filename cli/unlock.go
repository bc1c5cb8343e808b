package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miracle2k/naslock/internal/truenas"
	"github.com/miracle2k/naslock/internal/unlock"
)

var noAttach bool

var unlockCmd = &cobra.Command{
	Use:   "unlock <volume>",
	Short: "Unlock an encrypted dataset",
	Long: `Unlock an encrypted TrueNAS dataset.

The volume name refers to a volumes: section in the config file. The NAS
credentials and the dataset passphrase/key are read from the configured
KeePass database; the master password comes from the NASLOCK_PASSWORD
environment variable, the OS keyring (with keepass.use_keyring), or an
interactive prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnlock,
}

func init() {
	unlockCmd.Flags().BoolVar(&noAttach, "no-attach", false, "Do not restart attached services after unlock")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	volumeName := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if noAttach {
		vol, ok := cfg.Volumes[volumeName]
		if ok {
			attach := false
			vol.ToggleAttachments = &attach
			cfg.Volumes[volumeName] = vol
		}
	}

	runner := unlock.New(cfg, func() ([]byte, error) {
		return masterPassword(cfg)
	}, newLogger())

	res, err := runner.Run(cmd.Context(), volumeName)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case truenas.AlreadyUnlocked:
		printInfo(fmt.Sprintf("%s is already unlocked", volumeName))
	default:
		if len(res.Unlocked) > 0 {
			printSuccess("unlocked " + strings.Join(res.Unlocked, ", "))
		} else if res.Message != "" {
			printSuccess(res.Message)
		} else {
			printSuccess("unlock request accepted")
		}
	}
	return nil
}

// newLogger returns the diagnostic logger: debug to stderr with -v,
// discard otherwise. Human-facing output goes through the print helpers.
func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
