package fsutil

import (
	"os"
)

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CreateDirIfNotExists creates path and any missing parents with mode 0755.
// An empty path is a no-op.
func CreateDirIfNotExists(path string) error {
	if path == "" || DirExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
