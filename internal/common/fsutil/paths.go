package fsutil

import (
	"path/filepath"
	"strings"
)

// ExpandTilde expands the tilde in paths to the user's home directory
func ExpandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}

	// Replace just the ~ prefix with home directory
	return filepath.Join(home, path[2:]), nil
}
