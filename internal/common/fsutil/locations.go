package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deploymenttheory/go-nvstorage/internal/common/osutil"
)

type dirKind int

const (
	configDir dirKind = iota
	dataDir
	cacheDir
	logDir
)

// Relative directories used in development mode
var devDirs = map[dirKind]string{
	configDir: "config",
	dataDir:   "data",
	cacheDir:  "cache",
	logDir:    "logs",
}

// macOS locations, relative to the home directory
var darwinDirs = map[dirKind]string{
	configDir: filepath.Join("Library", "Application Support"),
	dataDir:   filepath.Join("Library", "Application Support"),
	cacheDir:  filepath.Join("Library", "Caches"),
	logDir:    filepath.Join("Library", "Logs"),
}

// XDG base directories: the environment override and the fallback under home
var xdgDirs = map[dirKind]struct{ env, fallback string }{
	configDir: {"XDG_CONFIG_HOME", ".config"},
	dataDir:   {"XDG_DATA_HOME", filepath.Join(".local", "share")},
	cacheDir:  {"XDG_CACHE_HOME", ".cache"},
}

// GetHomeDir returns the user's home directory
func GetHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return home, nil
}

// GetConfigDir returns the per-user configuration directory for appName
func GetConfigDir(appName string) (string, error) {
	return appDir(configDir, appName)
}

// GetDataDir returns the per-user data directory for appName
func GetDataDir(appName string) (string, error) {
	return appDir(dataDir, appName)
}

// GetCacheDir returns the per-user cache directory for appName
func GetCacheDir(appName string) (string, error) {
	return appDir(cacheDir, appName)
}

// GetLogDir returns the per-user log directory for appName
func GetLogDir(appName string) (string, error) {
	return appDir(logDir, appName)
}

// GetSystemConfigDir returns the system-wide configuration directory
func GetSystemConfigDir(appName string) (string, error) {
	switch {
	case osutil.IsDevEnvironment():
		return devDirs[configDir], nil
	case osutil.IsMacOS():
		return filepath.Join("/Library", "Application Support", appName), nil
	default:
		return filepath.Join("/etc", appName), nil
	}
}

func appDir(kind dirKind, appName string) (string, error) {
	if osutil.IsDevEnvironment() {
		return devDirs[kind], nil
	}

	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}

	if osutil.IsMacOS() {
		return filepath.Join(home, darwinDirs[kind], appName), nil
	}

	// Logs live under XDG_STATE_HOME when set, otherwise beside the data
	if kind == logDir {
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, appName, "logs"), nil
		}
		data, err := appDir(dataDir, appName)
		if err != nil {
			return "", err
		}
		return filepath.Join(data, "logs"), nil
	}

	xdg := xdgDirs[kind]
	base := os.Getenv(xdg.env)
	if base == "" {
		base = filepath.Join(home, xdg.fallback)
	}
	return filepath.Join(base, appName), nil
}
