//go:build linux

package nvram

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsImmutableFL is FS_IMMUTABLE_FL from linux/fs.h
const fsImmutableFL = 0x00000010

// isEfivarfs reports whether root is an efivarfs mount
func isEfivarfs(root string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return false
	}
	return uint32(st.Type) == uint32(unix.EFIVARFS_MAGIC)
}

// clearImmutable drops the immutable attribute efivarfs puts on most variables so
// they can be rewritten or deleted. A missing file is not an error.
func clearImmutable(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	fd := int(file.Fd())
	flags, err := unix.IoctlGetUint32(fd, unix.FS_IOC_GETFLAGS)
	if err != nil {
		return err
	}
	if flags&fsImmutableFL == 0 {
		return nil
	}
	return unix.IoctlSetPointerInt(fd, unix.FS_IOC_SETFLAGS, int(flags&^fsImmutableFL))
}
