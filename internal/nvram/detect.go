package nvram

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
)

// Environment describes where the host services live
type Environment struct {
	RegistryPath    string
	RegistryTimeout time.Duration
	RegistryMaxSize int

	EfivarsPath     string
	FirmwareMaxSize int
	VendorGUID      string
}

// Detect attaches to exactly one backend, preferring the registry node and
// falling back to firmware runtime variables.
func Detect(env Environment) (Backend, error) {
	registry, regErr := OpenRegistry(env.RegistryPath, RegistryOptions{
		MaxVariableSize: env.RegistryMaxSize,
		Timeout:         env.RegistryTimeout,
	})
	if regErr == nil {
		logger.LogDebug("Using registry variable store", map[string]interface{}{
			"path": env.RegistryPath,
		})
		return registry, nil
	}
	logger.LogDebug("Registry variable store unavailable", map[string]interface{}{
		"path":  env.RegistryPath,
		"error": regErr.Error(),
	})

	firmware, fwErr := OpenFirmware(env.EfivarsPath, FirmwareOptions{
		MaxVariableSize: env.FirmwareMaxSize,
		VendorGUID:      env.VendorGUID,
	})
	if fwErr == nil {
		logger.LogDebug("Using firmware variable store", map[string]interface{}{
			"path": env.EfivarsPath,
		})
		return firmware, nil
	}

	return nil, fmt.Errorf("%w: registry: %v; firmware: %v", errors.ErrBackendUnavailable, regErr, fwErr)
}
