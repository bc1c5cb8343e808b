package config

import (
	"fmt"
	"strings"
)

var validAuthMethods = map[string]bool{
	"":         true, // empty = decide by which fields the entry carries
	AuthBasic:  true,
	AuthAPIKey: true,
}

var validUnlockModes = map[string]bool{
	"":               true, // empty defaults to passphrase
	UnlockPassphrase: true,
	UnlockKey:        true,
}

// Validate checks a Config for structural errors. It collects all
// problems rather than returning on the first failure.
func (c *Config) Validate() error {
	var errs []string

	if c.Keepass.Path == "" {
		errs = append(errs, "keepass.path is required")
	}
	if len(c.NAS) == 0 {
		errs = append(errs, "at least one nas section is required")
	}
	if len(c.Volumes) == 0 {
		errs = append(errs, "at least one volume section is required")
	}

	for name, nas := range c.NAS {
		if nas.Host == "" {
			errs = append(errs, fmt.Sprintf("nas %q: host is required", name))
		}
		if nas.AuthEntry == "" {
			errs = append(errs, fmt.Sprintf("nas %q: auth_entry is required", name))
		}
		if !validAuthMethods[normalizeAuthMethod(nas.AuthMethod)] {
			errs = append(errs, fmt.Sprintf("nas %q: invalid auth_method %q", name, nas.AuthMethod))
		}
	}

	for name, vol := range c.Volumes {
		if vol.NAS == "" {
			errs = append(errs, fmt.Sprintf("volume %q: nas is required", name))
		} else if _, ok := c.NAS[vol.NAS]; !ok {
			errs = append(errs, fmt.Sprintf("volume %q: nas %q is not defined", name, vol.NAS))
		}
		if vol.Dataset == "" {
			errs = append(errs, fmt.Sprintf("volume %q: dataset is required", name))
		}
		if vol.UnlockEntry == "" {
			errs = append(errs, fmt.Sprintf("volume %q: unlock_entry is required", name))
		}
		if !validUnlockModes[normalizeUnlockMode(vol.UnlockMode)] {
			errs = append(errs, fmt.Sprintf("volume %q: invalid unlock_mode %q", name, vol.UnlockMode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// normalizeAuthMethod maps the "api-key" spelling to api_key.
func normalizeAuthMethod(m string) string {
	if m == "api-key" {
		return AuthAPIKey
	}
	return m
}

// normalizeUnlockMode maps the "key-file" and "key_file" spellings to key.
func normalizeUnlockMode(m string) string {
	if m == "key-file" || m == "key_file" {
		return UnlockKey
	}
	return m
}

// NormalizedAuthMethod returns the canonical auth_method value.
func (n NASConfig) NormalizedAuthMethod() string {
	return normalizeAuthMethod(n.AuthMethod)
}

// NormalizedUnlockMode returns the canonical unlock_mode value. Unset
// stays UnlockAuto.
func (v VolumeConfig) NormalizedUnlockMode() string {
	return normalizeUnlockMode(v.UnlockMode)
}
