// Package unlock sequences one vault-to-appliance unlock: obtain the
// master password, open the KeePass database, resolve and extract the NAS
// credential and the dataset secret, then call the TrueNAS API, retrying
// only network-level failures. Secret material is wiped on every exit
// path.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miracle2k/naslock/internal/config"
	"github.com/miracle2k/naslock/internal/extract"
	"github.com/miracle2k/naslock/internal/keepass"
	"github.com/miracle2k/naslock/internal/secrets"
	"github.com/miracle2k/naslock/internal/selector"
	"github.com/miracle2k/naslock/internal/truenas"
)

const defaultBackoff = 500 * time.Millisecond

// Vault is the opened-database view the orchestrator walks.
type Vault interface {
	Entries() []keepass.Entry
}

// PasswordFunc supplies the vault master password. The orchestrator owns
// the returned bytes and wipes them.
type PasswordFunc func() ([]byte, error)

// OpenFunc opens the vault at path with the password and optional key file.
type OpenFunc func(path, keyFile string, password []byte) (Vault, error)

// Caller issues the unlock call against the appliance.
type Caller interface {
	Unlock(ctx context.Context, req truenas.UnlockRequest) (*truenas.Result, error)
}

// NewCallerFunc builds a Caller for one NAS and credential.
type NewCallerFunc func(opts truenas.Options, cred extract.Credential, log *slog.Logger) (Caller, error)

// Runner holds the collaborators for one unlock invocation.
type Runner struct {
	Config    *config.Config
	Password  PasswordFunc
	Open      OpenFunc      // defaults to the keepass package
	NewCaller NewCallerFunc // defaults to the truenas package
	Log       *slog.Logger
	Backoff   time.Duration // base retry backoff, doubled per attempt
}

// New returns a Runner wired to the real collaborators.
func New(cfg *config.Config, password PasswordFunc, log *slog.Logger) *Runner {
	return &Runner{
		Config:   cfg,
		Password: password,
		Log:      log,
	}
}

func (r *Runner) open() OpenFunc {
	if r.Open != nil {
		return r.Open
	}
	return func(path, keyFile string, password []byte) (Vault, error) {
		return keepass.Open(path, keyFile, password)
	}
}

func (r *Runner) newCaller() NewCallerFunc {
	if r.NewCaller != nil {
		return r.NewCaller
	}
	return func(opts truenas.Options, cred extract.Credential, log *slog.Logger) (Caller, error) {
		return truenas.New(opts, cred, log)
	}
}

// Run performs the unlock sequence for the named volume.
func (r *Runner) Run(ctx context.Context, volumeName string) (*truenas.Result, error) {
	vol, nas, err := r.Config.LookupVolume(volumeName)
	if err != nil {
		return nil, err
	}

	password, err := r.Password()
	if err != nil {
		return nil, fmt.Errorf("reading master password: %w", err)
	}

	vault, err := r.open()(r.Config.Keepass.Path, r.Config.Keepass.KeyFile, password)
	// The master password is only needed to open the vault.
	secrets.Zero(password)
	if err != nil {
		return nil, err
	}
	r.Log.Debug("vault opened", "path", r.Config.Keepass.Path)

	cred, err := r.resolveCredential(vault, nas)
	if err != nil {
		return nil, err
	}
	defer cred.Wipe()

	secret, err := r.resolveSecret(vault, vol)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe()

	caller, err := r.newCaller()(truenas.Options{
		Host:          nas.Host,
		SkipTLSVerify: nas.SkipTLSVerify,
		Timeout:       nas.RequestTimeout(),
	}, cred, r.Log)
	if err != nil {
		return nil, err
	}

	req := truenas.UnlockRequest{
		Dataset:           vol.Dataset,
		Secret:            secret,
		Recursive:         vol.IsRecursive(),
		Force:             vol.Force,
		ToggleAttachments: vol.AttachAfterUnlock(),
	}

	return r.callWithRetry(ctx, caller, req, nas.RetryAttempts())
}

// resolveCredential maps the NAS auth_entry selector to a typed credential.
func (r *Runner) resolveCredential(vault Vault, nas config.NASConfig) (extract.Credential, error) {
	sel, err := selector.Parse(nas.AuthEntry)
	if err != nil {
		return extract.Credential{}, err
	}
	entry, err := selector.Resolve(vault.Entries(), sel)
	if err != nil {
		return extract.Credential{}, err
	}

	shape := extract.ShapeAuto
	switch nas.NormalizedAuthMethod() {
	case config.AuthBasic:
		shape = extract.ShapeBasic
	case config.AuthAPIKey:
		shape = extract.ShapeAPIKey
	}

	return extract.NASCredential(entry, extract.FieldNames{
		Username: nas.UsernameField,
		Password: nas.PasswordField,
		APIKey:   nas.APIKeyField,
	}, shape)
}

// resolveSecret maps the volume's unlock_entry selector to the dataset
// secret.
func (r *Runner) resolveSecret(vault Vault, vol config.VolumeConfig) (extract.UnlockSecret, error) {
	sel, err := selector.Parse(vol.UnlockEntry)
	if err != nil {
		return extract.UnlockSecret{}, err
	}
	entry, err := selector.Resolve(vault.Entries(), sel)
	if err != nil {
		return extract.UnlockSecret{}, err
	}

	mode := extract.SecretAuto
	switch vol.NormalizedUnlockMode() {
	case config.UnlockPassphrase:
		mode = extract.SecretPassphrase
	case config.UnlockKey:
		mode = extract.SecretKey
	}

	names := extract.FieldNames{}
	if vol.UnlockField != "" {
		names.Passphrase = vol.UnlockField
		names.KeyMaterial = vol.UnlockField
	}

	return extract.DatasetSecret(entry, names, mode)
}

// callWithRetry issues the unlock call, retrying only unreachable
// failures up to the attempt bound with exponential backoff. Every other
// failure aborts immediately.
func (r *Runner) callWithRetry(ctx context.Context, caller Caller, req truenas.UnlockRequest, attempts int) (*truenas.Result, error) {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var res *truenas.Result
	var err error
	for attempt := 1; ; attempt++ {
		res, err = caller.Unlock(ctx, req)

		var unreachable *truenas.UnreachableError
		if err == nil || !errors.As(err, &unreachable) || attempt >= attempts {
			return res, err
		}

		r.Log.Warn("appliance unreachable, retrying",
			"attempt", attempt, "of", attempts, "backoff", backoff.String())

		select {
		case <-ctx.Done():
			return nil, &truenas.UnreachableError{Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
