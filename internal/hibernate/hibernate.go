// Package hibernate runs the NVRAM work that has to happen when the machine is
// about to hibernate: persisting the hibernation keys handed over by the power
// manager and optionally dumping the whole store next to the hibernate file.
package hibernate

import (
	stderrors "errors"
	"fmt"
	"path/filepath"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"github.com/deploymenttheory/go-nvstorage/internal/nvstorage"
)

// SnapshotFileName is the file written next to the hibernate image
const SnapshotFileName = "nvram.plist"

// Store is the subset of the NVStorage engine the dumper needs
type Store interface {
	Exists(name string) bool
	Read(name string, mode nvstorage.Mode, key []byte) ([]byte, bool)
	Write(name string, payload []byte, mode nvstorage.Mode, key []byte) bool
	Remove(name string) bool
	Save(path string) bool
}

// Config controls where snapshots go
type Config struct {
	// HibernateFile is the hibernate image path; the snapshot lands in its directory
	HibernateFile string
	// SnapshotPath is used when HibernateFile has no directory component
	SnapshotPath string
	// BackupPath is tried when writing the primary snapshot fails
	BackupPath string
	// DumpNVRAM enables DumpOnSleep
	DumpNVRAM bool
}

// Dumper performs the sleep-time NVRAM steps against a Store
type Dumper struct {
	store Store
	cfg   Config
}

// NewDumper creates a Dumper
func NewDumper(store Store, cfg Config) *Dumper {
	return &Dumper{store: store, cfg: cfg}
}

// PersistHibernationKeys stores the RTC and SMC hibernation variables unless
// they are already present. A nil value is skipped. Once the RTC variable is
// written, the stale FakeSMC backup key is removed.
func (d *Dumper) PersistHibernationKeys(rtc, smc []byte) error {
	var failures []error

	if rtc != nil && !d.store.Exists(nvram.HibernateRTCVariables) {
		if !d.store.Write(nvram.HibernateRTCVariables, rtc, nvstorage.Raw, nil) {
			failures = append(failures, fmt.Errorf("%w: %s", errors.ErrBackendWrite, nvram.HibernateRTCVariables))
		} else {
			logger.LogInfo("Hibernation RTC variables written to NVRAM", nil)

			if d.store.Exists(nvram.FakeSMCHBKP) {
				if d.store.Remove(nvram.FakeSMCHBKP) {
					logger.LogInfo("Stale FakeSMC hibernation key removed", map[string]interface{}{
						"name": nvram.FakeSMCHBKP,
					})
				} else {
					failures = append(failures, fmt.Errorf("%w: remove %s", errors.ErrBackendWrite, nvram.FakeSMCHBKP))
				}
			}
		}
	}

	if smc != nil && !d.store.Exists(nvram.HibernateSMCVariables) {
		if !d.store.Write(nvram.HibernateSMCVariables, smc, nvstorage.Raw, nil) {
			failures = append(failures, fmt.Errorf("%w: %s", errors.ErrBackendWrite, nvram.HibernateSMCVariables))
		}
	}

	return stderrors.Join(failures...)
}

// SnapshotPath returns where DumpOnSleep writes the snapshot
func (d *Dumper) SnapshotPath() string {
	dir := filepath.Dir(d.cfg.HibernateFile)
	if d.cfg.HibernateFile == "" || dir == "." {
		return d.cfg.SnapshotPath
	}
	return filepath.Join(dir, SnapshotFileName)
}

// DumpOnSleep writes a snapshot of the store when dumping is enabled and
// returns the path written, or "" when dumping is disabled. The global boot
// variables are copied to bare names for the duration of the save so they show
// up in the snapshot.
func (d *Dumper) DumpOnSleep() (string, error) {
	if !d.cfg.DumpNVRAM {
		return "", nil
	}

	copies := []struct{ from, to string }{
		{nvram.PrefixedName(nvram.GlobalGUID, nvram.Boot0082), nvram.Boot0082},
		{nvram.PrefixedName(nvram.GlobalGUID, nvram.BootNext), nvram.BootNext},
	}
	for _, c := range copies {
		data, ok := d.store.Read(c.from, nvstorage.Raw, nil)
		if !ok {
			continue
		}
		if !d.store.Write(c.to, data, nvstorage.Raw, nil) {
			logger.LogWarn("Boot variable copy failed", map[string]interface{}{
				"name": c.to,
			})
		}
	}
	defer func() {
		for _, c := range copies {
			d.store.Remove(c.to)
		}
	}()

	path := d.SnapshotPath()
	if path != "" && d.store.Save(path) {
		logger.WithFields(map[string]interface{}{"path": path}).Info("NVRAM dumped for hibernation")
		return path, nil
	}

	if d.cfg.BackupPath != "" && d.cfg.BackupPath != path {
		logger.LogWarn("Retrying NVRAM snapshot at backup path", map[string]interface{}{
			"path":        path,
			"backup_path": d.cfg.BackupPath,
		})
		if d.store.Save(d.cfg.BackupPath) {
			logger.WithFields(map[string]interface{}{"path": d.cfg.BackupPath}).Info("NVRAM dumped for hibernation")
			return d.cfg.BackupPath, nil
		}
	}

	return "", fmt.Errorf("%w: snapshot could not be written to %q or %q", errors.ErrFileWriteError, path, d.cfg.BackupPath)
}
