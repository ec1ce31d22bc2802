//go:build linux

package nvram

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestClearImmutable(t *testing.T) {
	root := t.TempDir()

	if err := clearImmutable(filepath.Join(root, "missing")); err != nil {
		t.Errorf("clearImmutable on a missing file = %v, want nil", err)
	}

	path := filepath.Join(root, "BootNext-8be4df61-93ca-11d2-aa0d-00e098032b8c")
	if err := os.WriteFile(path, []byte{0x07, 0x00, 0x00, 0x00, 0x82, 0x00}, 0o644); err != nil {
		t.Fatalf("Failed to write variable file: %v", err)
	}

	err := clearImmutable(path)
	if stderrors.Is(err, unix.ENOTTY) || stderrors.Is(err, unix.EOPNOTSUPP) || stderrors.Is(err, unix.EINVAL) {
		t.Skipf("file flags not supported on %s: %v", root, err)
	}
	if err != nil {
		t.Fatalf("clearImmutable failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	flags, err := unix.IoctlGetUint32(int(file.Fd()), unix.FS_IOC_GETFLAGS)
	if err != nil {
		t.Fatalf("FS_IOC_GETFLAGS failed: %v", err)
	}
	if flags&fsImmutableFL != 0 {
		t.Errorf("immutable flag still set: 0x%08x", flags)
	}
}
