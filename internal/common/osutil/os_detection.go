package osutil

import (
	"os"
	"runtime"
)

// OS type constants
const (
	MacOS = "darwin"
	Linux = "linux"
)

// efiRuntimeDir exists on Linux hosts booted through UEFI
var efiRuntimeDir = "/sys/firmware/efi"

// GetOSType returns the current operating system type
func GetOSType() string {
	return runtime.GOOS
}

// IsMacOS returns true if running on macOS (Darwin)
func IsMacOS() bool {
	return GetOSType() == MacOS
}

// IsLinux returns true if running on Linux
func IsLinux() bool {
	return GetOSType() == Linux
}

// HasEFIRuntime reports whether the kernel exposes UEFI runtime services,
// which is what makes firmware variables reachable.
func HasEFIRuntime() bool {
	if !IsLinux() {
		return false
	}
	info, err := os.Stat(efiRuntimeDir)
	return err == nil && info.IsDir()
}

// IsDevEnvironment checks if the application is running in a development
// environment based on environment variables
func IsDevEnvironment() bool {
	switch {
	case os.Getenv("NVSTORAGE_ENV") == "development":
		return true
	case os.Getenv("NVSTORAGE_DEV") == "true":
		return true
	default:
		return os.Getenv("DEV") == "true"
	}
}
