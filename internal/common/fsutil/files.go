// fsutil/files.go
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileExists checks if a file exists and is not a directory
func FileExists(path string) bool {
	unlock := lockPath(path)
	defer unlock()

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ReadFile reads an entire file into memory
func ReadFile(path string) ([]byte, error) {
	unlock := lockPath(path)
	defer unlock()

	return os.ReadFile(path)
}

// WriteFileAtomic writes data to a temporary file in the destination directory,
// syncs it and renames it over path. Readers see either the old file or the
// complete new one. The destination directory must already exist.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	unlock := lockPath(path)
	defer unlock()

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Every exit path below either renames or removes the temp file
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	committed = true
	return nil
}

// Writers to the same path inside this process are serialized
var pathLocks sync.Map

func lockPath(path string) (unlock func()) {
	actual, _ := pathLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
