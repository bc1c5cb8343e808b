// Package config defines the types for the naslock config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of config.yaml.
type Config struct {
	Keepass KeepassConfig           `yaml:"keepass"`
	NAS     map[string]NASConfig    `yaml:"nas"`
	Volumes map[string]VolumeConfig `yaml:"volumes"`

	// Volume is accepted as an alias for volumes.
	Volume map[string]VolumeConfig `yaml:"volume,omitempty"`
}

// KeepassConfig locates the KeePass database holding the secrets.
type KeepassConfig struct {
	Path       string `yaml:"path"`
	KeyFile    string `yaml:"key_file,omitempty"`
	UseKeyring bool   `yaml:"use_keyring,omitempty"` // read master password from the OS keyring
}

// Auth method values for a NAS.
const (
	AuthBasic  = "basic"
	AuthAPIKey = "api_key"
)

// NASConfig holds connection details for one TrueNAS appliance.
type NASConfig struct {
	Host          string `yaml:"host"`
	AuthEntry     string `yaml:"auth_entry"`
	AuthMethod    string `yaml:"auth_method,omitempty"` // basic | api_key, empty = by field presence
	UsernameField string `yaml:"username_field,omitempty"`
	PasswordField string `yaml:"password_field,omitempty"`
	APIKeyField   string `yaml:"api_key_field,omitempty"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify,omitempty"`
	Timeout       string `yaml:"timeout,omitempty"` // e.g. "30s"
	Retries       int    `yaml:"retries,omitempty"` // attempts when the NAS is unreachable
}

// RequestTimeout returns the configured timeout, or the 30s default.
func (n NASConfig) RequestTimeout() time.Duration {
	return parseDuration(n.Timeout, 30*time.Second)
}

// RetryAttempts returns the configured retry bound, or the default of 3.
func (n NASConfig) RetryAttempts() int {
	if n.Retries <= 0 {
		return 3
	}
	return n.Retries
}

// Unlock mode values for a volume. Empty means auto: a passphrase field
// is preferred, key material is the fallback.
const (
	UnlockAuto       = ""
	UnlockPassphrase = "passphrase"
	UnlockKey        = "key"
)

// VolumeConfig describes one encrypted dataset and where its secret lives.
type VolumeConfig struct {
	NAS               string `yaml:"nas"`
	Dataset           string `yaml:"dataset"`
	UnlockEntry       string `yaml:"unlock_entry"`
	UnlockField       string `yaml:"unlock_field,omitempty"`
	UnlockMode        string `yaml:"unlock_mode,omitempty"` // passphrase | key
	Recursive         *bool  `yaml:"recursive,omitempty"`   // default true
	Force             bool   `yaml:"force,omitempty"`
	ToggleAttachments *bool  `yaml:"toggle_attachments,omitempty"` // default true
}

// IsRecursive reports whether child datasets are unlocked too (default true).
func (v VolumeConfig) IsRecursive() bool {
	return v.Recursive == nil || *v.Recursive
}

// AttachAfterUnlock reports whether services attached to the dataset are
// restarted after unlock (default true).
func (v VolumeConfig) AttachAfterUnlock() bool {
	return v.ToggleAttachments == nil || *v.ToggleAttachments
}

// Load reads and parses a naslock config file. Relative paths and ~ in the
// keepass section are expanded against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Volumes) == 0 && len(cfg.Volume) > 0 {
		cfg.Volumes = cfg.Volume
	}
	cfg.Volume = nil

	baseDir := filepath.Dir(path)
	cfg.Keepass.Path = ExpandPath(cfg.Keepass.Path, baseDir)
	if cfg.Keepass.KeyFile != "" {
		cfg.Keepass.KeyFile = ExpandPath(cfg.Keepass.KeyFile, baseDir)
	}

	return &cfg, nil
}

// UnknownRefError reports a CLI argument or cross-reference that names a
// section the config does not define.
type UnknownRefError struct {
	Kind string // "volume" or "nas"
	Name string
}

func (e *UnknownRefError) Error() string {
	return fmt.Sprintf("unknown %s %q in config", e.Kind, e.Name)
}

// LookupVolume returns the named volume and the NAS it references.
func (c *Config) LookupVolume(name string) (VolumeConfig, NASConfig, error) {
	vol, ok := c.Volumes[name]
	if !ok {
		return VolumeConfig{}, NASConfig{}, &UnknownRefError{Kind: "volume", Name: name}
	}
	nas, ok := c.NAS[vol.NAS]
	if !ok {
		return VolumeConfig{}, NASConfig{}, &UnknownRefError{Kind: "nas", Name: vol.NAS}
	}
	return vol, nas, nil
}

// parseDuration parses a duration string, returning fallback on error or empty.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
