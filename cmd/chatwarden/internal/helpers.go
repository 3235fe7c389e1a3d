package internal

import (
	"os"
	"path/filepath"
)

const Logo = "🛡️"

var version = "dev"

// GetConfigPath returns the default config file location.
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatwarden", "config.json")
}

// GetDataDir returns the default state directory, creating it if needed.
func GetDataDir() string {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".chatwarden")
	os.MkdirAll(dir, 0o755)
	return dir
}

// GetVersion returns the version string.
func GetVersion() string {
	return version
}
