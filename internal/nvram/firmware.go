package nvram

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
)

// EFI variable attributes
const (
	AttrNonVolatile       uint32 = 0x00000001
	AttrBootserviceAccess uint32 = 0x00000002
	AttrRuntimeAccess     uint32 = 0x00000004

	defaultAttributes = AttrNonVolatile | AttrBootserviceAccess | AttrRuntimeAccess
	attributesSize    = 4
)

const (
	// DefaultEfivarsPath is where Linux mounts efivarfs
	DefaultEfivarsPath = "/sys/firmware/efi/efivars"

	// DefaultFirmwareMaxSize is the per-variable limit of the firmware store
	DefaultFirmwareMaxSize = 32768
)

// FirmwareOptions configures OpenFirmware
type FirmwareOptions struct {
	MaxVariableSize int
	// VendorGUID namespaces names given without a GUID prefix
	VendorGUID string
}

// Firmware talks to firmware runtime variables through an efivarfs mount. Each
// variable is a file named "Name-guid" holding a 4-byte attribute word followed by
// the data. Names passed to Firmware are either bare (vendor namespace) or
// "GUID:Name".
type Firmware struct {
	root       string
	vendorGUID string
	maxSize    int
	efivarfs   bool
}

// OpenFirmware attaches to the variable directory at root
func OpenFirmware(root string, opts FirmwareOptions) (*Firmware, error) {
	if root == "" || !fsutil.DirExists(root) {
		return nil, fmt.Errorf("%w: firmware variables not mounted at %q", errors.ErrBackendUnavailable, root)
	}

	vendor := opts.VendorGUID
	if vendor == "" {
		vendor = DefaultVendorGUID
	}
	if !ValidGUID(vendor) {
		return nil, fmt.Errorf("%w: vendor GUID %q", errors.ErrConfigInvalid, vendor)
	}
	maxSize := opts.MaxVariableSize
	if maxSize == 0 {
		maxSize = DefaultFirmwareMaxSize
	}

	return &Firmware{
		root:       root,
		vendorGUID: strings.ToUpper(vendor),
		maxSize:    maxSize,
		efivarfs:   isEfivarfs(root),
	}, nil
}

func (f *Firmware) Kind() Kind { return KindFirmware }

// fileName maps a variable name to its efivarfs file name
func (f *Firmware) fileName(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	guid, bare := SplitPrefixedName(name)
	if guid == "" {
		guid = f.vendorGUID
	}
	if bare == "" || strings.ContainsRune(bare, '/') {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidName, name)
	}
	return bare + "-" + strings.ToLower(guid), nil
}

// variableName maps an efivarfs file name back to a variable name
func (f *Firmware) variableName(file string) (string, bool) {
	if len(file) < guidLength+2 || file[len(file)-guidLength-1] != '-' {
		return "", false
	}
	guid := file[len(file)-guidLength:]
	bare := file[:len(file)-guidLength-1]
	if !ValidGUID(guid) {
		return "", false
	}
	if strings.EqualFold(guid, f.vendorGUID) {
		return bare, true
	}
	return PrefixedName(strings.ToUpper(guid), bare), true
}

func (f *Firmware) Get(name string) ([]byte, error) {
	file, err := f.fileName(name)
	if err != nil {
		return nil, err
	}
	return f.readFile(name, filepath.Join(f.root, file))
}

func (f *Firmware) readFile(name, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrVariableNotFound, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrBackendRead, name, err)
	}
	if len(data) < attributesSize {
		return nil, fmt.Errorf("%w: %s: missing attribute header", errors.ErrBackendRead, name)
	}
	return cloneBytes(data[attributesSize:]), nil
}

func (f *Firmware) Set(name string, value []byte) error {
	file, err := f.fileName(name)
	if err != nil {
		return err
	}
	if err := checkSize(name, value, f.maxSize); err != nil {
		return err
	}

	buf := make([]byte, attributesSize+len(value))
	binary.LittleEndian.PutUint32(buf, defaultAttributes)
	copy(buf[attributesSize:], value)

	path := filepath.Join(f.root, file)
	if err := clearImmutable(path); err != nil {
		logger.LogDebug("Could not clear immutable flag", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	if f.efivarfs {
		err = writeVariable(path, buf)
	} else {
		err = fsutil.WriteFileAtomic(path, buf, 0644)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrBackendWrite, name, err)
	}
	return nil
}

// writeVariable hands the whole buffer to efivarfs in one write call; the kernel
// applies it as a single SetVariable.
func writeVariable(path string, buf []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	n, err := file.Write(buf)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(buf))
	}
	return err
}

func (f *Firmware) Remove(name string) error {
	file, err := f.fileName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(f.root, file)

	if err := clearImmutable(path); err != nil {
		logger.LogDebug("Could not clear immutable flag", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", errors.ErrBackendWrite, name, err)
	}
	return nil
}

func (f *Firmware) Enumerate() ([]Variable, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrBackendRead, err)
	}

	var vars []Variable
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name, ok := f.variableName(entry.Name())
		if !ok {
			continue
		}
		value, err := f.readFile(name, filepath.Join(f.root, entry.Name()))
		if err != nil {
			// Some firmware variables are readable only by the kernel
			logger.LogDebug("Skipping unreadable firmware variable", map[string]interface{}{
				"name":  name,
				"error": err.Error(),
			})
			continue
		}
		vars = append(vars, Variable{Name: name, Value: value})
	}
	return vars, nil
}

func (f *Firmware) Close() error { return nil }
