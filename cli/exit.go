package cli

import (
	"errors"

	"github.com/miracle2k/naslock/internal/config"
	"github.com/miracle2k/naslock/internal/extract"
	"github.com/miracle2k/naslock/internal/keepass"
	"github.com/miracle2k/naslock/internal/selector"
	"github.com/miracle2k/naslock/internal/truenas"
)

// Process exit codes by error category, so callers (systemd units, boot
// scripts) can tell what kind of intervention is needed.
const (
	exitGeneric    = 1
	exitConfig     = 2
	exitVault      = 3
	exitResolution = 4
	exitAPI        = 5
)

// configError marks load/validate failures so they exit with the config
// category.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// exitCode maps an error to its taxonomy category.
func exitCode(err error) int {
	var (
		cfgErr      *configError
		unknownRef  *config.UnknownRefError
		invalidSel  *selector.InvalidError
		notFound    *selector.NotFoundError
		ambiguous   *selector.AmbiguousError
		integrity   *selector.IntegrityError
		missing     *extract.MissingFieldError
		empty       *extract.EmptyFieldError
		authErr     *truenas.AuthError
		rejected    *truenas.SecretRejectedError
		unreachable *truenas.UnreachableError
		unexpected  *truenas.UnexpectedResponseError
	)

	switch {
	case errors.As(err, &cfgErr), errors.As(err, &unknownRef):
		return exitConfig
	case errors.Is(err, keepass.ErrWrongPassword), errors.Is(err, keepass.ErrCorrupt):
		return exitVault
	case errors.As(err, &invalidSel),
		errors.As(err, &notFound),
		errors.As(err, &ambiguous),
		errors.As(err, &integrity),
		errors.As(err, &missing),
		errors.As(err, &empty):
		return exitResolution
	case errors.As(err, &authErr),
		errors.As(err, &rejected),
		errors.As(err, &unreachable),
		errors.As(err, &unexpected):
		return exitAPI
	default:
		return exitGeneric
	}
}
