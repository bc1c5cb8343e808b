package config

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvConfig is the environment variable overriding the config path.
const EnvConfig = "NASLOCK_CONFIG"

// ResolvePath returns the config file path from the flag value, the
// NASLOCK_CONFIG environment variable, or the per-user default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return ExpandPath(flagValue, "")
	}
	if v := os.Getenv(EnvConfig); v != "" {
		return ExpandPath(v, "")
	}
	return DefaultPath()
}

// DefaultPath is the per-user default config location,
// e.g. ~/.config/naslock/config.yaml on Linux.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".naslock", "config.yaml")
	}
	return filepath.Join(dir, "naslock", "config.yaml")
}

// ExpandPath expands a leading ~ to the user home directory and resolves
// relative paths against baseDir (when given).
func ExpandPath(path, baseDir string) string {
	expanded := expandTilde(path)
	if baseDir != "" && !filepath.IsAbs(expanded) {
		return filepath.Join(baseDir, expanded)
	}
	return expanded
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
