package hibernate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-nvstorage/internal/common/plistutil"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"github.com/deploymenttheory/go-nvstorage/internal/nvstorage"
)

func newEngine(t *testing.T) (*nvstorage.Engine, *nvram.Memory) {
	t.Helper()
	backend := nvram.NewMemory(0)
	e := nvstorage.New(nvstorage.WithBackend(backend))
	if err := e.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { e.Deinit() })
	return e, backend
}

func TestPersistHibernationKeys(t *testing.T) {
	e, backend := newEngine(t)
	backend.Set(nvram.FakeSMCHBKP, []byte{0x01})

	d := NewDumper(e, Config{})
	if err := d.PersistHibernationKeys([]byte("rtc"), []byte("smc")); err != nil {
		t.Fatalf("PersistHibernationKeys failed: %v", err)
	}

	got, err := backend.Get(nvram.HibernateRTCVariables)
	if err != nil || string(got) != "rtc" {
		t.Errorf("RTC variable = %q, %v", got, err)
	}
	got, err = backend.Get(nvram.HibernateSMCVariables)
	if err != nil || string(got) != "smc" {
		t.Errorf("SMC variable = %q, %v", got, err)
	}
	if e.Exists(nvram.FakeSMCHBKP) {
		t.Error("FakeSMC key should have been removed")
	}
}

func TestPersistHibernationKeysKeepsExisting(t *testing.T) {
	e, backend := newEngine(t)
	backend.Set(nvram.HibernateRTCVariables, []byte("old"))
	backend.Set(nvram.FakeSMCHBKP, []byte{0x01})

	d := NewDumper(e, Config{})
	if err := d.PersistHibernationKeys([]byte("new"), nil); err != nil {
		t.Fatalf("PersistHibernationKeys failed: %v", err)
	}

	got, _ := backend.Get(nvram.HibernateRTCVariables)
	if string(got) != "old" {
		t.Errorf("RTC variable = %q, want old", got)
	}
	if !e.Exists(nvram.FakeSMCHBKP) {
		t.Error("FakeSMC key removed although RTC was not written")
	}
	if e.Exists(nvram.HibernateSMCVariables) {
		t.Error("SMC variable written from a nil value")
	}
}

func TestSnapshotPath(t *testing.T) {
	tests := []struct {
		hibernateFile string
		want          string
	}{
		{"/var/vm/sleepimage", "/var/vm/nvram.plist"},
		{"/sleepimage", "/nvram.plist"},
		{"sleepimage", "/fallback.plist"},
		{"", "/fallback.plist"},
	}

	for _, tt := range tests {
		d := NewDumper(nil, Config{HibernateFile: tt.hibernateFile, SnapshotPath: "/fallback.plist"})
		if got := d.SnapshotPath(); got != tt.want {
			t.Errorf("SnapshotPath(%q) = %q, want %q", tt.hibernateFile, got, tt.want)
		}
	}
}

func TestDumpOnSleepDisabled(t *testing.T) {
	e, _ := newEngine(t)
	d := NewDumper(e, Config{HibernateFile: filepath.Join(t.TempDir(), "sleepimage")})

	path, err := d.DumpOnSleep()
	if err != nil || path != "" {
		t.Errorf("DumpOnSleep = %q, %v; want nothing", path, err)
	}
}

func TestDumpOnSleep(t *testing.T) {
	e, backend := newEngine(t)
	backend.Set(nvram.PrefixedName(nvram.GlobalGUID, nvram.Boot0082), []byte{0xAA, 0xBB})
	backend.Set("boot-args", []byte("-v"))

	dir := t.TempDir()
	d := NewDumper(e, Config{
		HibernateFile: filepath.Join(dir, "sleepimage"),
		DumpNVRAM:     true,
	})

	path, err := d.DumpOnSleep()
	if err != nil {
		t.Fatalf("DumpOnSleep failed: %v", err)
	}
	if path != filepath.Join(dir, SnapshotFileName) {
		t.Errorf("Path = %q", path)
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	vars, err := plistutil.ParseVariables(doc)
	if err != nil {
		t.Fatalf("ParseVariables failed: %v", err)
	}
	found := map[string][]byte{}
	for _, v := range vars {
		found[v.Name] = v.Value
	}
	if !bytes.Equal(found[nvram.Boot0082], []byte{0xAA, 0xBB}) {
		t.Errorf("Snapshot Boot0082 = % x", found[nvram.Boot0082])
	}
	if _, ok := found[nvram.BootNext]; ok {
		t.Error("Snapshot contains BootNext although it was never set")
	}

	if e.Exists(nvram.Boot0082) {
		t.Error("Bare Boot0082 copy was not removed")
	}
}

func TestDumpOnSleepFallsBackToBackup(t *testing.T) {
	e, _ := newEngine(t)
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup.plist")

	d := NewDumper(e, Config{
		HibernateFile: filepath.Join(dir, "missing", "sleepimage"),
		BackupPath:    backup,
		DumpNVRAM:     true,
	})

	path, err := d.DumpOnSleep()
	if err != nil {
		t.Fatalf("DumpOnSleep failed: %v", err)
	}
	if path != backup {
		t.Errorf("Path = %q, want %q", path, backup)
	}
	if _, err := os.Stat(backup); err != nil {
		t.Errorf("Backup snapshot missing: %v", err)
	}
}

func TestDumpOnSleepFails(t *testing.T) {
	e, _ := newEngine(t)
	dir := t.TempDir()

	d := NewDumper(e, Config{
		HibernateFile: filepath.Join(dir, "missing", "sleepimage"),
		BackupPath:    filepath.Join(dir, "also-missing", "nvram.plist"),
		DumpNVRAM:     true,
	})

	if _, err := d.DumpOnSleep(); err == nil {
		t.Error("DumpOnSleep should fail when neither path is writable")
	}
}
