package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/miracle2k/naslock/internal/secrets"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the KeePass password stored in the OS keyring",
}

var keyringSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the KeePass master password in the OS keyring",
	Args:  cobra.NoArgs,
	RunE:  runKeyringSet,
}

var keyringClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored KeePass password from the OS keyring",
	Args:  cobra.NoArgs,
	RunE:  runKeyringClear,
}

func init() {
	keyringCmd.AddCommand(keyringSetCmd)
	keyringCmd.AddCommand(keyringClearCmd)
}

func runKeyringSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password, err := readPasswordConfirm()
	if err != nil {
		return err
	}
	defer secrets.Zero(password)

	if err := keyring.Set(keyringService, cfg.Keepass.Path, string(password)); err != nil {
		return fmt.Errorf("storing password in keyring: %w", err)
	}

	printSuccess(fmt.Sprintf("Password stored for %s", cfg.Keepass.Path))
	return nil
}

func runKeyringClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := keyring.Delete(keyringService, cfg.Keepass.Path); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			printInfo(fmt.Sprintf("No password stored for %s", cfg.Keepass.Path))
			return nil
		}
		return fmt.Errorf("removing password from keyring: %w", err)
	}

	printSuccess(fmt.Sprintf("Password removed for %s", cfg.Keepass.Path))
	return nil
}
