package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deploymenttheory/go-nvstorage/internal/common/compressionutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "go-nvstorage.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogFormat != "human" {
		t.Errorf("LogFormat = %q, want human", cfg.LogFormat)
	}
	if cfg.NVRAM.EfivarsPath != nvram.DefaultEfivarsPath {
		t.Errorf("EfivarsPath = %q", cfg.NVRAM.EfivarsPath)
	}
	if cfg.NVRAM.VendorGUID != nvram.DefaultVendorGUID {
		t.Errorf("VendorGUID = %q", cfg.NVRAM.VendorGUID)
	}
	if cfg.NVRAM.RegistryTimeout != time.Second {
		t.Errorf("RegistryTimeout = %s, want 1s", cfg.NVRAM.RegistryTimeout)
	}
	if cfg.NVRAM.RegistryMaxSize != nvram.DefaultRegistryMaxSize {
		t.Errorf("RegistryMaxSize = %d", cfg.NVRAM.RegistryMaxSize)
	}
	if cfg.Snapshot.Path != "/nvram.plist" {
		t.Errorf("Snapshot.Path = %q", cfg.Snapshot.Path)
	}
	if cfg.Snapshot.DumpNVRAM {
		t.Error("DumpNVRAM should default to false")
	}

	algorithm, err := cfg.CompressionAlgorithm()
	if err != nil || algorithm != compression.AlgorithmLZ4 {
		t.Errorf("CompressionAlgorithm = %s, %v", algorithm, err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
log_format: json
nvram:
  registry_path: /tmp/options.db
  registry_timeout: 250ms
  compression: zstd
snapshot:
  backup_path: /tmp/backup.plist
  dump_nvram: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Debug || cfg.LogFormat != "json" {
		t.Errorf("Core settings not loaded: %+v", cfg)
	}
	if cfg.NVRAM.RegistryTimeout != 250*time.Millisecond {
		t.Errorf("RegistryTimeout = %s", cfg.NVRAM.RegistryTimeout)
	}
	if cfg.NVRAM.Compression != "zstd" {
		t.Errorf("Compression = %q", cfg.NVRAM.Compression)
	}
	if !cfg.Snapshot.DumpNVRAM || cfg.Snapshot.BackupPath != "/tmp/backup.plist" {
		t.Errorf("Snapshot settings not loaded: %+v", cfg.Snapshot)
	}

	env := cfg.Environment()
	if env.RegistryPath != "/tmp/options.db" || env.RegistryTimeout != 250*time.Millisecond {
		t.Errorf("Environment = %+v", env)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("NVSTORAGE_NVRAM_COMPRESSION", "xz")
	t.Setenv("NVSTORAGE_NVRAM_EFIVARS_PATH", "/tmp/efivars")

	cfg, err := Load(writeConfig(t, "nvram:\n  compression: lz4\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NVRAM.Compression != "xz" {
		t.Errorf("Compression = %q, want xz", cfg.NVRAM.Compression)
	}
	if cfg.NVRAM.EfivarsPath != "/tmp/efivars" {
		t.Errorf("EfivarsPath = %q", cfg.NVRAM.EfivarsPath)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"compression": "nvram:\n  compression: gzip\n",
		"log format":  "log_format: xml\n",
		"vendor guid": "nvram:\n  vendor_guid: not-a-guid\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			if !stderrors.Is(err, errors.ErrConfigInvalid) {
				t.Errorf("Load error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !stderrors.Is(err, errors.ErrConfigParseError) {
		t.Errorf("Load error = %v, want ErrConfigParseError", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	cfg, err := Load(writeConfig(t, "snapshot:\n  backup_path: ~/nvram.plist\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if want := filepath.Join(home, "nvram.plist"); cfg.Snapshot.BackupPath != want {
		t.Errorf("BackupPath = %q, want %q", cfg.Snapshot.BackupPath, want)
	}
}
