package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenBSD has no unified buffer cache, so a mapping must be synced on its own.
func fdatasync(f *os.File, mapping []byte) error {
	if len(mapping) > 0 {
		return unix.Msync(mapping, unix.MS_SYNC)
	}
	return f.Sync()
}
