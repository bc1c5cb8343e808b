package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/miracle2k/naslock/internal/config"
	"github.com/miracle2k/naslock/internal/secrets"
)

// EnvPassword is the environment variable that can carry the KeePass
// master password for non-interactive runs.
const EnvPassword = "NASLOCK_PASSWORD"

// keyringService namespaces naslock entries in the OS keyring; the vault
// path is the account, so different databases keep separate passwords.
const keyringService = "naslock"

// masterPassword retrieves the KeePass master password: environment
// variable first, then the OS keyring when enabled, then an interactive
// prompt. The caller owns the bytes and wipes them.
func masterPassword(cfg *config.Config) ([]byte, error) {
	if v := os.Getenv(EnvPassword); v != "" {
		return []byte(v), nil
	}

	if cfg.Keepass.UseKeyring {
		stored, err := keyring.Get(keyringService, cfg.Keepass.Path)
		if err == nil {
			return []byte(stored), nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("reading keyring: %w", err)
		}
		// Not stored yet — fall through to the prompt.
	}

	return readPassword("KeePass password: ")
}

// readPassword reads a password from the terminal without echoing.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// readPasswordConfirm reads a password twice and ensures both match.
func readPasswordConfirm() ([]byte, error) {
	first, err := readPassword("KeePass password: ")
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(first)

	second, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(second)

	if string(first) != string(second) {
		return nil, errors.New("passwords do not match")
	}
	return secrets.Copy(first), nil
}
