//go:build !linux

package nvram

func isEfivarfs(string) bool { return false }

func clearImmutable(string) error { return nil }
